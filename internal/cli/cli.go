// Пакет cli: консоль Portline в командной строке (consolectl).
// Команды работают поверх тех же сервисов, что и HTTP-консоль;
// токен, роль и корзина хранятся в JSON-файле между запусками.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigkaa/portline/console/internal/apiclient"
	"github.com/bigkaa/portline/console/internal/config"
	"github.com/bigkaa/portline/console/internal/listview"
	"github.com/bigkaa/portline/console/internal/service"
	"github.com/bigkaa/portline/console/internal/session"
	"github.com/bigkaa/portline/console/internal/validation"
)

// cliSessionID: идентификатор единственной сессии CLI.
const cliSessionID = "consolectl"

// maxPageSize: верхняя граница --page-size.
const maxPageSize = 500

// Backend: все операции REST-бэкенда, нужные CLI.
type Backend interface {
	session.Backend
	service.CollectionBackend
	service.Registrar
}

// Options: зависимости CLI. Пустые Backend и Store создаются
// из конфигурации окружения (CONSOLE_*).
type Options struct {
	Backend Backend
	Store   session.Store
	Logger  *slog.Logger
}

// app: состояние одного запуска команды.
type app struct {
	opts Options

	sess        *session.Session
	collections *service.CollectionService
	carts       *service.CartService
	auth        *service.AuthService
	profiles    *service.ProfileService
}

// NewRootCommand создаёт корневую команду consolectl.
func NewRootCommand(opts Options) *cobra.Command {
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:   "consolectl",
		Short: "Консоль Portline: сущности порта, корзина и заказы",
		Long: `Консоль Portline в командной строке.
Переменные окружения:
  CONSOLE_BACKEND_URL=https://api.portline.lan
  CONSOLE_BACKEND_TIMEOUT=10s
  CONSOLE_BACKEND_CA_CERT_PATH=
  CONSOLE_STORE_PATH=~/.config/portline/console.json
  CONSOLE_LOG_LEVEL=warn`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.teardown()
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.Version = config.Version

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.registerCmd(),
		a.listCmd(),
		a.profileCmd(),
		a.cartCmd(),
	)
	return root
}

// setup создаёт зависимости и загружает сессию из хранилища.
func (a *app) setup(cmd *cobra.Command) error {
	if a.opts.Logger == nil || a.opts.Backend == nil || a.opts.Store == nil {
		cfg, err := config.LoadClient()
		if err != nil {
			return fmt.Errorf("конфигурация: %w", err)
		}
		if a.opts.Logger == nil {
			a.opts.Logger = config.SetupLogger(cfg.LogLevel, cfg.LogFormat)
		}
		if a.opts.Backend == nil {
			client, err := apiclient.New(cfg.BackendURL, cfg.BackendTimeout, cfg.BackendCACertPath, a.opts.Logger)
			if err != nil {
				return fmt.Errorf("клиент бэкенда: %w", err)
			}
			a.opts.Backend = client
		}
		if a.opts.Store == nil {
			a.opts.Store = session.NewFileStore(cfg.StorePath)
		}
	}

	logger := a.opts.Logger
	a.sess = session.New(cliSessionID, a.opts.Store, a.opts.Backend, logger)
	if err := a.sess.Init(cmd.Context()); err != nil {
		return fmt.Errorf("загрузка сессии: %w", err)
	}

	v := validation.New()
	a.carts = service.NewCartService(a.opts.Backend, v, logger)
	a.collections = service.NewCollectionService(
		a.opts.Backend, a.carts.ProductIDs,
		listview.DefaultPageSize, maxPageSize,
		len(resourceNames()), time.Hour, logger,
	)
	a.auth = service.NewAuthService(a.opts.Backend, v, logger)
	a.profiles = service.NewProfileService(a.opts.Backend, v, logger)
	return nil
}

func (a *app) teardown() {
	if a.sess != nil {
		a.sess.Close()
	}
}

// notice печатает ожидающее уведомление сессии (например, о недействительном токене).
func (a *app) notice(w io.Writer) {
	if n := a.sess.TakeNotice(); n != "" {
		fmt.Fprintln(w, n)
	}
}
