package listview

import (
	"sync"

	"github.com/bigkaa/portline/console/internal/domain/model"
)

// Page: страница производного представления.
type Page struct {
	Items      []model.Record `json:"items"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
	Total      int            `json:"total"`
	HasNext    bool           `json:"has_next"`
	HasPrev    bool           `json:"has_prev"`
	Search     Search         `json:"-"`
	Sort       SortState      `json:"-"`
}

// View: экземпляр списка. Хранит исходную коллекцию и элементы управления,
// при любом их изменении пересчитывает производное представление
// заново из исходной коллекции. Безопасен для конкурентного использования.
type View struct {
	mu       sync.Mutex
	pipeline *Pipeline
	key      model.KeyFunc

	source  []model.Record
	derived []model.Record
	search  Search
	sort    SortState
	pager   *Pager
	// hidden: ключи записей, скрытых из представления (товары в корзине).
	hidden map[string]struct{}

	// onRecompute вызывается после каждого пересчёта (метрики).
	onRecompute func(derived int)
}

// ViewOption настраивает View.
type ViewOption func(*View)

// WithRecomputeHook задаёт функцию, вызываемую после каждого пересчёта.
func WithRecomputeHook(fn func(derived int)) ViewOption {
	return func(v *View) { v.onRecompute = fn }
}

// NewView создаёт пустое представление. key нужен для слияния мутаций.
func NewView(p *Pipeline, key model.KeyFunc, pageSize int, opts ...ViewOption) *View {
	v := &View{
		pipeline: p,
		key:      key,
		pager:    NewPager(pageSize),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.recompute()
	return v
}

// SetSource заменяет исходную коллекцию целиком (результат загрузки).
func (v *View) SetSource(records []model.Record) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.source = make([]model.Record, len(records))
	copy(v.source, records)
	v.recompute()
}

// Source возвращает копию исходной коллекции.
func (v *View) Source() []model.Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]model.Record, len(v.source))
	copy(out, v.source)
	return out
}

// SetSearch меняет строку и колонку поиска.
func (v *View) SetSearch(s Search) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setSearch(s)
}

// SetSort меняет колонку сортировки.
func (v *View) SetSort(s SortState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setSort(s)
}

// SetPageSize меняет размер страницы. Возвращает на первую страницу,
// только если размер действительно изменился.
func (v *View) SetPageSize(size int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setPageSize(size)
}

// Nav: шаг навигации по страницам.
type Nav int

const (
	NavNone Nav = iota
	NavNext
	NavPrev
)

// Query: элементы управления одного запроса. Нулевые PageSize и Page
// оставляют текущие значения.
type Query struct {
	Search   Search
	Sort     SortState
	PageSize int
	Page     int
	Nav      Nav
}

// Apply применяет элементы управления и возвращает страницу под одной
// блокировкой: параллельный запрос не вклинится между шагами.
func (v *View) Apply(q Query) Page {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setSearch(q.Search)
	v.setSort(q.Sort)
	v.setPageSize(q.PageSize)
	if q.Page > 0 {
		v.pager.GoTo(q.Page)
	}
	switch q.Nav {
	case NavNext:
		v.pager.Next()
	case NavPrev:
		v.pager.Prev()
	}
	return v.page()
}

func (v *View) setSearch(s Search) {
	if v.search == s {
		return
	}
	v.search = s
	v.recompute()
}

func (v *View) setSort(s SortState) {
	if v.sort == s {
		return
	}
	v.sort = s
	v.recompute()
}

func (v *View) setPageSize(size int) {
	if size <= 0 || size == v.pager.Size() {
		return
	}
	v.pager.SetPageSize(size)
}

// SetHidden задаёт ключи записей, скрываемых из представления.
// Исходная коллекция не меняется; nil снимает скрытие.
func (v *View) SetHidden(keys map[string]struct{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if sameKeys(v.hidden, keys) {
		return
	}
	v.hidden = make(map[string]struct{}, len(keys))
	for k := range keys {
		v.hidden[k] = struct{}{}
	}
	v.recompute()
}

// GoTo переходит на страницу с зажатием в допустимый диапазон.
func (v *View) GoTo(page int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pager.GoTo(page)
}

// Next переходит на следующую страницу, на границе ничего не делает.
func (v *View) Next() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pager.Next()
}

// Prev переходит на предыдущую страницу, на границе ничего не делает.
func (v *View) Prev() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pager.Prev()
}

// Derived возвращает копию производного (отфильтрованного и отсортированного) представления.
func (v *View) Derived() []model.Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]model.Record, len(v.derived))
	copy(out, v.derived)
	return out
}

// Page возвращает текущую страницу.
func (v *View) Page() Page {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page()
}

func (v *View) page() Page {
	return Page{
		Items:      Paginate(v.derived, v.pager.Current(), v.pager.Size()),
		Page:       v.pager.Current(),
		PageSize:   v.pager.Size(),
		TotalPages: v.pager.TotalPages(),
		Total:      v.pager.Total(),
		HasNext:    v.pager.HasNext(),
		HasPrev:    v.pager.HasPrev(),
		Search:     v.search,
		Sort:       v.sort,
	}
}

// Append добавляет созданную запись в исходную коллекцию.
func (v *View) Append(rec model.Record) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.source = Append(v.source, rec)
	v.recompute()
}

// Replace заменяет запись с тем же ключом. Возвращает false, если её нет.
func (v *View) Replace(rec model.Record) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	var ok bool
	v.source, ok = ReplaceByKey(v.source, rec, v.key)
	if ok {
		v.recompute()
	}
	return ok
}

// Remove удаляет запись по ключу. Возвращает false, если её нет.
func (v *View) Remove(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	var ok bool
	v.source, ok = RemoveByKey(v.source, id, v.key)
	if ok {
		v.recompute()
	}
	return ok
}

// Find возвращает запись исходной коллекции по ключу.
func (v *View) Find(id string) (model.Record, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range v.source {
		if v.key(r) == id {
			return r, true
		}
	}
	return nil, false
}

// recompute пересчитывает представление из исходной коллекции.
// Вызывается под v.mu.
func (v *View) recompute() {
	source := v.source
	if len(v.hidden) > 0 {
		source = make([]model.Record, 0, len(v.source))
		for _, r := range v.source {
			if _, skip := v.hidden[v.key(r)]; !skip {
				source = append(source, r)
			}
		}
	}
	v.derived = v.pipeline.Compute(source, v.search, v.sort)
	v.pager.SetTotal(len(v.derived))
	if v.onRecompute != nil {
		v.onRecompute(len(v.derived))
	}
}

func sameKeys(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
