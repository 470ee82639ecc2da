package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/portline/console/internal/validation"
)

func (a *app) loginCmd() *cobra.Command {
	var form validation.LoginForm
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Вход в консоль",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			role, err := a.auth.Login(cmd.Context(), a.sess, form)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Вход выполнен, роль: %s\n", role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&form.LogonName, "user", "u", "", "логин")
	cmd.Flags().StringVarP(&form.Password, "password", "p", "", "пароль")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Выход из консоли",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.auth.Logout(cmd.Context(), a.sess); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Выход выполнен")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Профиль владельца сохранённого токена",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			a.notice(out)
			id, err := a.sess.Identity(cmd.Context())
			if err != nil {
				return err
			}
			info := a.sess.Info()
			rows := [][]string{
				{"id_client", fmt.Sprint(id.IDClient)},
				{"role", id.Role},
				{"logon_name", id.LogonName},
				{"name", id.Name},
				{"email", id.Email},
			}
			if info.ExpiresAt != nil {
				rows = append(rows, []string{"expires_at", info.ExpiresAt.Format("2006-01-02 15:04:05")})
			}
			renderTable(out, []string{"поле", "значение"}, rows)
			return nil
		},
	}
}

func (a *app) registerCmd() *cobra.Command {
	var form validation.RegisterForm
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Регистрация клиента",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := a.auth.Register(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Клиент зарегистрирован, id_client: %s\n", rec.String("id_client"))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&form.LogonName, "user", "u", "", "логин")
	f.StringVarP(&form.Password, "password", "p", "", "пароль")
	f.StringVar(&form.Name, "name", "", "имя")
	f.StringVar(&form.Email, "email", "", "email")
	f.StringVar(&form.Address, "address", "", "адрес")
	f.StringVar(&form.TelephoneNumber, "phone", "", "телефон (7-15 цифр)")
	return cmd
}
