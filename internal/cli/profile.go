package cli

import (
	"github.com/spf13/cobra"

	"github.com/bigkaa/portline/console/internal/domain/model"
	"github.com/bigkaa/portline/console/internal/validation"
)

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Собственная запись клиента",
	}
	cmd.AddCommand(a.profileUpdateCmd())
	return cmd
}

func (a *app) profileUpdateCmd() *cobra.Command {
	var form validation.ProfileForm
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Изменение собственной записи (все поля обязательны)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			a.notice(out)
			rec, err := a.profiles.Update(cmd.Context(), a.sess, form)
			if err != nil {
				return err
			}
			columns := []string{"id_client", "logon_name", "name", "email", "address", "telephone_number"}
			renderTable(out, columns, recordRows(columns, []model.Record{rec}))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&form.LogonName, "user", "u", "", "логин (буквы и цифры, от 4 символов)")
	f.StringVarP(&form.Password, "password", "p", "", "новый пароль (от 8 символов)")
	f.StringVar(&form.Name, "name", "", "имя")
	f.StringVar(&form.Email, "email", "", "email")
	f.StringVar(&form.Address, "address", "", "адрес (8-64 символа)")
	f.StringVar(&form.TelephoneNumber, "phone", "", "телефон (7-15 цифр)")
	return cmd
}
