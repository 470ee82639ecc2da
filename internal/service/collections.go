// collections.go: представления коллекций сущностей для сессий консоли.
//
// Исходная коллекция загружается с бэкенда один раз на сессию и сущность
// и кэшируется вместе с элементами управления списка (поиск, сортировка,
// страница). Результаты мутаций вливаются в кэшированную коллекцию,
// конвейер пересчитывает представление. Роль проверяется на каждом вызове.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/portline/console/internal/domain/apperr"
	"github.com/bigkaa/portline/console/internal/domain/model"
	"github.com/bigkaa/portline/console/internal/domain/rbac"
	"github.com/bigkaa/portline/console/internal/listview"
	"github.com/bigkaa/portline/console/internal/resource"
	"github.com/bigkaa/portline/console/internal/session"
)

// Prometheus-метрики представлений.
var (
	sourceCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_source_cache_total",
		Help: "Обращения к кэшу исходных коллекций (hit, miss).",
	}, []string{"resource", "result"})

	viewRecomputeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_view_recompute_total",
		Help: "Количество пересчётов производных представлений.",
	}, []string{"resource"})

	viewDerivedSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "console_view_derived_records",
		Help:    "Размер производного представления после пересчёта.",
		Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
	}, []string{"resource"})
)

// Навигация по страницам.
const (
	NavNext = "next"
	NavPrev = "prev"
)

// CollectionBackend: операции бэкенда над коллекциями.
type CollectionBackend interface {
	List(ctx context.Context, token, resource string) ([]model.Record, error)
	ListRelated(ctx context.Context, token, resource, parent, parentID string) ([]model.Record, error)
	Get(ctx context.Context, token, resource, id string) (model.Record, error)
	Create(ctx context.Context, token, resource string, body model.Record) (model.Record, error)
	Update(ctx context.Context, token, resource, id string, body model.Record) (model.Record, error)
	Delete(ctx context.Context, token, resource, id string) error
}

// HiddenKeysFunc возвращает ключи записей, скрываемых из представлений
// сущностей с HideCartItems (идентификаторы продуктов в корзине).
type HiddenKeysFunc func(ctx context.Context, sess *session.Session) (map[string]struct{}, error)

// ViewQuery: элементы управления списком из запроса.
// Нулевые Page и PageSize оставляют текущие значения.
type ViewQuery struct {
	Term     string
	Column   string
	Sort     string
	Page     int
	PageSize int
	Nav      string
}

// CollectionService: представления коллекций по сессиям.
type CollectionService struct {
	backend         CollectionBackend
	hidden          HiddenKeysFunc
	defaultPageSize int
	maxPageSize     int
	logger          *slog.Logger

	// views: ключ "<session_id>/<resource>".
	views *expirable.LRU[string, *listview.View]
}

// NewCollectionService создаёт сервис представлений.
// maxViews ограничивает число кэшированных коллекций, idleTTL задаёт их время жизни.
func NewCollectionService(
	backend CollectionBackend,
	hidden HiddenKeysFunc,
	defaultPageSize, maxPageSize int,
	maxViews int,
	idleTTL time.Duration,
	logger *slog.Logger,
) *CollectionService {
	return &CollectionService{
		backend:         backend,
		hidden:          hidden,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		logger:          logger.With(slog.String("component", "collections")),
		views:           expirable.NewLRU[string, *listview.View](maxViews, nil, idleTTL),
	}
}

// View возвращает страницу производного представления сущности.
func (s *CollectionService) View(ctx context.Context, sess *session.Session, name string, q ViewQuery) (*listview.Page, error) {
	desc, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := s.checkQuery(desc, q); err != nil {
		return nil, err
	}
	token, err := authorize(ctx, sess, desc, resource.ActionList)
	if err != nil {
		return nil, err
	}

	v, err := s.view(ctx, sess, desc, token)
	if err != nil {
		return nil, err
	}
	if err := s.applyHidden(ctx, sess, desc, v); err != nil {
		return nil, err
	}

	page := v.Apply(s.listQuery(q))
	return &page, nil
}

// listQuery переводит элементы управления запроса в запрос к представлению.
func (s *CollectionService) listQuery(q ViewQuery) listview.Query {
	lq := listview.Query{
		Search:   listview.Search{Term: q.Term, Column: q.Column},
		Sort:     listview.SortState{Column: q.Sort},
		PageSize: min(q.PageSize, s.maxPageSize),
		Page:     q.Page,
	}
	switch q.Nav {
	case NavNext:
		lq.Nav = listview.NavNext
	case NavPrev:
		lq.Nav = listview.NavPrev
	}
	return lq
}

// Reload заново загружает исходную коллекцию. Элементы управления сохраняются.
func (s *CollectionService) Reload(ctx context.Context, sess *session.Session, name string) (*listview.Page, error) {
	desc, err := lookup(name)
	if err != nil {
		return nil, err
	}
	token, err := authorize(ctx, sess, desc, resource.ActionList)
	if err != nil {
		return nil, err
	}

	records, err := s.backend.List(ctx, token, desc.Name)
	if err != nil {
		return nil, fmt.Errorf("загрузка %s: %w", desc.Name, err)
	}
	v, ok := s.views.Get(cacheKey(sess.ID(), desc.Name))
	if !ok {
		v = s.newView(desc)
		s.views.Add(cacheKey(sess.ID(), desc.Name), v)
	}
	v.SetSource(records)
	if err := s.applyHidden(ctx, sess, desc, v); err != nil {
		return nil, err
	}

	s.logger.Debug("Коллекция перезагружена",
		slog.String("session_id", sess.ID()),
		slog.String("resource", desc.Name),
		slog.Int("records", len(records)),
	)
	page := v.Page()
	return &page, nil
}

// Get возвращает одну запись с бэкенда.
func (s *CollectionService) Get(ctx context.Context, sess *session.Session, name, id string) (model.Record, error) {
	desc, err := lookup(name)
	if err != nil {
		return nil, err
	}
	token, err := authorize(ctx, sess, desc, resource.ActionRead)
	if err != nil {
		return nil, err
	}
	rec, err := s.backend.Get(ctx, token, desc.Name, id)
	if err != nil {
		return nil, fmt.Errorf("чтение %s/%s: %w", desc.Name, id, err)
	}
	return rec, nil
}

// Create создаёт запись и добавляет её в кэшированную коллекцию.
func (s *CollectionService) Create(ctx context.Context, sess *session.Session, name string, body model.Record) (model.Record, error) {
	desc, err := lookup(name)
	if err != nil {
		return nil, err
	}
	token, err := authorize(ctx, sess, desc, resource.ActionCreate)
	if err != nil {
		return nil, err
	}
	rec, err := s.backend.Create(ctx, token, desc.Name, body)
	if err != nil {
		return nil, fmt.Errorf("создание %s: %w", desc.Name, err)
	}
	s.Absorb(sess.ID(), desc.Name, rec)
	return rec, nil
}

// Absorb добавляет запись, созданную в обход сервиса (например, заказ
// из корзины), в кэшированную коллекцию сессии, если она загружена.
func (s *CollectionService) Absorb(sessionID, name string, rec model.Record) {
	if v, ok := s.views.Peek(cacheKey(sessionID, name)); ok {
		v.Append(rec)
	}
}

// Refresh заменяет запись, изменённую в обход сервиса (например, профиль
// пользователя), в кэшированной коллекции сессии, если она загружена.
func (s *CollectionService) Refresh(sessionID, name string, rec model.Record) {
	if v, ok := s.views.Peek(cacheKey(sessionID, name)); ok {
		v.Replace(rec)
	}
}

// Update изменяет запись и заменяет её в кэшированной коллекции.
// Если бэкенд вернул не запись, а подтверждение без ключа, запись
// собирается из кэшированной версии и отправленных полей.
func (s *CollectionService) Update(ctx context.Context, sess *session.Session, name, id string, body model.Record) (model.Record, error) {
	desc, err := lookup(name)
	if err != nil {
		return nil, err
	}
	token, err := authorize(ctx, sess, desc, resource.ActionUpdate)
	if err != nil {
		return nil, err
	}
	resp, err := s.backend.Update(ctx, token, desc.Name, id, body)
	if err != nil {
		return nil, fmt.Errorf("изменение %s/%s: %w", desc.Name, id, err)
	}

	key := desc.KeyFunc()
	v, cached := s.views.Peek(cacheKey(sess.ID(), desc.Name))
	rec := resp
	if key(resp) != id {
		rec = model.Record{}
		if cached {
			if existing, ok := v.Find(id); ok {
				rec = existing.Clone()
			}
		}
		for k, val := range body {
			rec[k] = val
		}
	}

	if cached && !v.Replace(rec) {
		s.logger.Warn("Изменённая запись не найдена в коллекции",
			slog.String("resource", desc.Name),
			slog.String("id", id),
		)
	}
	return rec, nil
}

// Delete удаляет запись и убирает её из кэшированной коллекции.
// Запись, уже удалённая на бэкенде (404), считается удалённой успешно.
func (s *CollectionService) Delete(ctx context.Context, sess *session.Session, name, id string) error {
	desc, err := lookup(name)
	if err != nil {
		return err
	}
	token, err := authorize(ctx, sess, desc, resource.ActionDelete)
	if err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, token, desc.Name, id); err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("удаление %s/%s: %w", desc.Name, id, err)
		}
		s.logger.Debug("Запись уже удалена на бэкенде",
			slog.String("resource", desc.Name),
			slog.String("id", id),
		)
	}
	if v, ok := s.views.Peek(cacheKey(sess.ID(), desc.Name)); ok {
		v.Remove(id)
	}
	return nil
}

// Related возвращает страницу подколлекции сущности по родительской записи
// (продукты и заказы порта, заказы клиента). Подколлекция загружается
// один раз и дальше живёт как обычное представление со своими
// элементами управления. Мутации в неё не вливаются, см. ReloadRelated.
func (s *CollectionService) Related(ctx context.Context, sess *session.Session, name, parent, parentID string, q ViewQuery) (*listview.Page, error) {
	desc, rel, err := lookupRelation(name, parent, parentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkQuery(desc, q); err != nil {
		return nil, err
	}
	token, err := authorizeRelation(ctx, sess, rel, parentID)
	if err != nil {
		return nil, err
	}

	k := relatedKey(sess.ID(), desc.Name, parent, parentID)
	v, ok := s.views.Get(k)
	if ok {
		sourceCacheTotal.WithLabelValues(desc.Name, "hit").Inc()
	} else {
		sourceCacheTotal.WithLabelValues(desc.Name, "miss").Inc()
		if v, err = s.loadRelated(ctx, token, desc, parent, parentID, nil); err != nil {
			return nil, err
		}
		s.views.Add(k, v)
	}
	if err := s.applyHidden(ctx, sess, desc, v); err != nil {
		return nil, err
	}
	page := v.Apply(s.listQuery(q))
	return &page, nil
}

// ReloadRelated заново загружает подколлекцию. Элементы управления сохраняются.
func (s *CollectionService) ReloadRelated(ctx context.Context, sess *session.Session, name, parent, parentID string) (*listview.Page, error) {
	desc, rel, err := lookupRelation(name, parent, parentID)
	if err != nil {
		return nil, err
	}
	token, err := authorizeRelation(ctx, sess, rel, parentID)
	if err != nil {
		return nil, err
	}

	k := relatedKey(sess.ID(), desc.Name, parent, parentID)
	v, _ := s.views.Get(k)
	if v, err = s.loadRelated(ctx, token, desc, parent, parentID, v); err != nil {
		return nil, err
	}
	s.views.Add(k, v)
	if err := s.applyHidden(ctx, sess, desc, v); err != nil {
		return nil, err
	}
	page := v.Page()
	return &page, nil
}

// loadRelated загружает подколлекцию в v (nil: новое представление).
func (s *CollectionService) loadRelated(ctx context.Context, token string, desc resource.Descriptor, parent, parentID string, v *listview.View) (*listview.View, error) {
	records, err := s.backend.ListRelated(ctx, token, desc.Name, parent, parentID)
	if err != nil {
		return nil, fmt.Errorf("загрузка %s по %s %s: %w", desc.Name, parent, parentID, err)
	}
	if v == nil {
		v = s.newView(desc)
	}
	v.SetSource(records)
	s.logger.Debug("Подколлекция загружена",
		slog.String("resource", desc.Name),
		slog.String("parent", parent),
		slog.String("parent_id", parentID),
		slog.Int("records", len(records)),
	)
	return v, nil
}

// DropSession удаляет все кэшированные коллекции сессии.
func (s *CollectionService) DropSession(sessionID string) {
	prefix := sessionID + "/"
	for _, k := range s.views.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.views.Remove(k)
		}
	}
}

// view возвращает кэшированное представление или загружает коллекцию.
func (s *CollectionService) view(ctx context.Context, sess *session.Session, desc resource.Descriptor, token string) (*listview.View, error) {
	k := cacheKey(sess.ID(), desc.Name)
	if v, ok := s.views.Get(k); ok {
		sourceCacheTotal.WithLabelValues(desc.Name, "hit").Inc()
		return v, nil
	}
	sourceCacheTotal.WithLabelValues(desc.Name, "miss").Inc()

	records, err := s.backend.List(ctx, token, desc.Name)
	if err != nil {
		return nil, fmt.Errorf("загрузка %s: %w", desc.Name, err)
	}
	v := s.newView(desc)
	v.SetSource(records)
	s.views.Add(k, v)
	return v, nil
}

func (s *CollectionService) newView(desc resource.Descriptor) *listview.View {
	name := desc.Name
	return listview.NewView(desc.Pipeline(), desc.KeyFunc(), s.defaultPageSize,
		listview.WithRecomputeHook(func(derived int) {
			viewRecomputeTotal.WithLabelValues(name).Inc()
			viewDerivedSize.WithLabelValues(name).Observe(float64(derived))
		}),
	)
}

func (s *CollectionService) applyHidden(ctx context.Context, sess *session.Session, desc resource.Descriptor, v *listview.View) error {
	if !desc.HideCartItems || s.hidden == nil {
		return nil
	}
	keys, err := s.hidden(ctx, sess)
	if err != nil {
		return fmt.Errorf("чтение корзины: %w", err)
	}
	v.SetHidden(keys)
	return nil
}

// checkQuery проверяет колонки поиска и сортировки до обращения к бэкенду.
func (s *CollectionService) checkQuery(desc resource.Descriptor, q ViewQuery) error {
	if q.Column != "" && !desc.HasColumn(q.Column) {
		return apperr.NewValidation("column", fmt.Sprintf("неизвестная колонка %q", q.Column))
	}
	if q.Sort != "" && !desc.HasColumn(q.Sort) {
		return apperr.NewValidation("sort", fmt.Sprintf("неизвестная колонка %q", q.Sort))
	}
	if q.PageSize < 0 {
		return apperr.NewValidation("page_size", "значение должно быть положительным")
	}
	if q.Nav != "" && q.Nav != NavNext && q.Nav != NavPrev {
		return apperr.NewValidation("nav", "допустимые значения: next, prev")
	}
	return nil
}

// lookupRelation находит подколлекцию и проверяет идентификатор родителя.
func lookupRelation(name, parent, parentID string) (resource.Descriptor, resource.Relation, error) {
	desc, err := lookup(name)
	if err != nil {
		return desc, resource.Relation{}, err
	}
	rel, ok := desc.Relation(parent)
	if !ok {
		return desc, rel, fmt.Errorf("%w: у сущности %q нет подколлекции по %q", apperr.ErrNotFound, name, parent)
	}
	if id, err := strconv.ParseInt(parentID, 10, 64); err != nil || id <= 0 {
		return desc, rel, apperr.NewValidation("parent_id", "ожидается положительное целое число")
	}
	return desc, rel, nil
}

// authorizeRelation проверяет роль для подколлекции. Клиент получает
// подколлекцию с OwnClient только для собственного id_client.
func authorizeRelation(ctx context.Context, sess *session.Session, rel resource.Relation, parentID string) (string, error) {
	role, err := sess.RequireRole(ctx, rel.Roles)
	if err != nil {
		return "", err
	}
	if rel.OwnClient && role == rbac.RoleClient {
		identity, err := sess.Identity(ctx)
		if err != nil {
			return "", err
		}
		if strconv.FormatInt(identity.IDClient, 10) != parentID {
			return "", fmt.Errorf("%w: клиент видит только свои записи", apperr.ErrAccessDenied)
		}
	}
	return sess.Token(ctx)
}

func lookup(name string) (resource.Descriptor, error) {
	desc, ok := resource.Lookup(name)
	if !ok {
		return resource.Descriptor{}, fmt.Errorf("%w: неизвестная сущность %q", apperr.ErrNotFound, name)
	}
	return desc, nil
}

// authorize проверяет роль для операции и возвращает токен сессии.
func authorize(ctx context.Context, sess *session.Session, desc resource.Descriptor, action resource.Action) (string, error) {
	if _, err := sess.RequireRole(ctx, desc.Allowed(action)); err != nil {
		return "", err
	}
	return sess.Token(ctx)
}

func cacheKey(sessionID, name string) string {
	return sessionID + "/" + name
}

func relatedKey(sessionID, name, parent, parentID string) string {
	return sessionID + "/" + name + "@" + parent + "/" + parentID
}
