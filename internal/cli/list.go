package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bigkaa/portline/console/internal/domain/apperr"
	"github.com/bigkaa/portline/console/internal/domain/model"
	"github.com/bigkaa/portline/console/internal/listview"
	"github.com/bigkaa/portline/console/internal/resource"
	"github.com/bigkaa/portline/console/internal/service"
)

func resourceNames() []string {
	return resource.Names()
}

func (a *app) listCmd() *cobra.Command {
	var (
		q  service.ViewQuery
		by string
	)
	cmd := &cobra.Command{
		Use:       "list <resource>",
		Short:     "Список сущностей с поиском, сортировкой и страницами",
		Long:      "Сущности: " + strings.Join(resourceNames(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: resourceNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a.notice(out)
			var (
				page *listview.Page
				err  error
			)
			if by == "" {
				page, err = a.collections.View(cmd.Context(), a.sess, args[0], q)
			} else {
				parent, parentID, ok := strings.Cut(by, ":")
				if !ok {
					return apperr.NewValidation("by", "ожидается <родитель>:<id>, например port:1")
				}
				page, err = a.collections.Related(cmd.Context(), a.sess, args[0], parent, parentID, q)
			}
			if err != nil {
				return err
			}
			desc, _ := resource.Lookup(args[0])
			renderTable(out, desc.Columns, recordRows(desc.Columns, page.Items))
			fmt.Fprintf(out, "Страница %d из %d, записей: %d\n", page.Page, max(page.TotalPages, 1), page.Total)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.Term, "q", "", "строка поиска (без учёта регистра)")
	f.StringVar(&q.Column, "column", "", "колонка поиска (по умолчанию все поля)")
	f.StringVar(&q.Sort, "sort", "", "колонка сортировки по возрастанию")
	f.IntVar(&q.Page, "page", 1, "номер страницы")
	f.IntVar(&q.PageSize, "page-size", 0, "размер страницы")
	f.StringVar(&by, "by", "", "подколлекция родителя: port:<id> или client:<id>")
	return cmd
}

func recordRows(columns []string, items []model.Record) [][]string {
	rows := make([][]string, 0, len(items))
	for _, rec := range items {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = rec.String(c)
		}
		rows = append(rows, row)
	}
	return rows
}
