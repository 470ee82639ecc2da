package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bigkaa/portline/console/internal/service"
	"github.com/bigkaa/portline/console/internal/validation"
)

func (a *app) cartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Корзина и оформление заказа",
	}
	cmd.AddCommand(
		a.cartListCmd(),
		a.cartAddCmd(),
		a.cartRemoveCmd(),
		a.cartClearCmd(),
		a.cartCheckoutCmd(),
	)
	return cmd
}

func (a *app) cartListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Содержимое корзины",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := a.carts.Items(cmd.Context(), a.sess)
			if err != nil {
				return err
			}
			renderCart(cmd.OutOrStdout(), view)
			return nil
		},
	}
}

func (a *app) cartAddCmd() *cobra.Command {
	var quantity int
	cmd := &cobra.Command{
		Use:   "add <id_product>",
		Short: "Добавить продукт в корзину",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			view, err := a.carts.Add(cmd.Context(), a.sess, validation.CartItemForm{IDProduct: id, Quantity: quantity})
			if err != nil {
				return err
			}
			renderCart(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().IntVarP(&quantity, "quantity", "n", 1, "количество")
	return cmd
}

func (a *app) cartRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id_product>",
		Short: "Убрать продукт из корзины",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			view, err := a.carts.Remove(cmd.Context(), a.sess, id)
			if err != nil {
				return err
			}
			renderCart(cmd.OutOrStdout(), view)
			return nil
		},
	}
}

func (a *app) cartClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Очистить корзину",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.carts.Clear(cmd.Context(), a.sess); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Корзина очищена")
			return nil
		},
	}
}

func (a *app) cartCheckoutCmd() *cobra.Command {
	var form validation.CheckoutForm
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Оформить заказ из корзины",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.carts.Checkout(cmd.Context(), a.sess, form)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Заказ %s оформлен, статус: %s\n",
				res.Order.String("id_order"), res.Order.String("status"))
			return nil
		},
	}
	cmd.Flags().Int64Var(&form.IDPort, "port", 0, "id порта доставки")
	cmd.Flags().Int64Var(&form.IDClient, "client", 0, "id клиента (только для сотрудников)")
	return cmd
}

func renderCart(w io.Writer, view *service.CartView) {
	rows := make([][]string, 0, len(view.Items))
	for _, it := range view.Items {
		rows = append(rows, []string{
			strconv.FormatInt(it.IDProduct, 10),
			it.Name,
			formatFloat(it.Price),
			formatFloat(it.Weight),
			strconv.Itoa(it.Quantity),
			formatFloat(it.Subtotal()),
		})
	}
	renderTable(w, []string{"id_product", "name", "price", "weight", "quantity", "subtotal"}, rows)
	t := view.Totals
	fmt.Fprintf(w, "Позиций: %d, единиц: %d, стоимость: %s, вес: %s\n",
		t.Positions, t.Quantity, formatFloat(t.Price), formatFloat(t.Weight))
}
