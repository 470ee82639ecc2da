// Пакет listview реализует конвейер списка: поиск, сортировка и пагинация
// коллекции записей в памяти. Производное представление всегда
// пересчитывается из исходной коллекции, фильтры не накапливаются.
// Пакет не обращается к бэкенду.
package listview

import (
	"sort"
	"strings"

	"github.com/bigkaa/portline/console/internal/domain/model"
)

// Policy: правило сравнения значений поля при сортировке.
type Policy int

const (
	// PolicyAuto: оба значения числовые, сравнение числовое, иначе строковое с учётом регистра.
	PolicyAuto Policy = iota
	// PolicyNumeric: как Auto, но строки вида "12.50" тоже считаются числами.
	PolicyNumeric
	// PolicyString: всегда строковое сравнение с учётом регистра.
	PolicyString
	// PolicyFold: строковое сравнение без учёта регистра.
	PolicyFold
)

// String возвращает имя политики для логов.
func (p Policy) String() string {
	switch p {
	case PolicyNumeric:
		return "numeric"
	case PolicyString:
		return "string"
	case PolicyFold:
		return "fold"
	default:
		return "auto"
	}
}

// DefaultPolicies воспроизводит исторически сложившееся поведение:
// email сортируется без учёта регистра, остальные поля по правилу Auto.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{"email": PolicyFold}
}

// Search: состояние поиска. Пустой Column означает поиск по всем полям.
type Search struct {
	Term   string
	Column string
}

// SortState: состояние сортировки. Пустой Column сохраняет исходный порядок.
type SortState struct {
	Column string
}

// Options: параметры конвейера.
type Options struct {
	// Policies: политика сравнения по имени поля. Отсутствующие поля получают PolicyAuto.
	Policies map[string]Policy
	// Excluded: поля, не участвующие в поиске по всем полям (пароли, изображения).
	Excluded []string
}

// Pipeline: настроенный конвейер поиска и сортировки.
// Без состояния, безопасен для конкурентного использования.
type Pipeline struct {
	policies map[string]Policy
	excluded map[string]struct{}
}

// New создаёт конвейер. Если Policies == nil, используется DefaultPolicies.
func New(opts Options) *Pipeline {
	policies := opts.Policies
	if policies == nil {
		policies = DefaultPolicies()
	}
	p := &Pipeline{
		policies: make(map[string]Policy, len(policies)),
		excluded: make(map[string]struct{}, len(opts.Excluded)),
	}
	for k, v := range policies {
		p.policies[k] = v
	}
	for _, f := range opts.Excluded {
		p.excluded[f] = struct{}{}
	}
	return p
}

// PolicyFor возвращает политику сравнения поля.
func (p *Pipeline) PolicyFor(column string) Policy {
	return p.policies[column]
}

// Compute фильтрует и сортирует исходную коллекцию.
// Исходный срез не изменяется, результат всегда новый срез.
func (p *Pipeline) Compute(source []model.Record, search Search, st SortState) []model.Record {
	return p.Sort(p.Filter(source, search), st)
}

// Filter возвращает записи, подходящие под поиск (подстрока без учёта регистра).
// Пустой Term пропускает все записи.
func (p *Pipeline) Filter(source []model.Record, search Search) []model.Record {
	out := make([]model.Record, 0, len(source))
	if search.Term == "" {
		return append(out, source...)
	}

	term := strings.ToLower(search.Term)
	for _, r := range source {
		if p.matches(r, term, search.Column) {
			out = append(out, r)
		}
	}
	return out
}

// matches проверяет одну запись. term уже приведён к нижнему регистру.
func (p *Pipeline) matches(r model.Record, term, column string) bool {
	if column != "" {
		// Отсутствующее или nil поле никогда не совпадает.
		if !r.Has(column) {
			return false
		}
		return containsFold(r.String(column), term)
	}

	for field, v := range r {
		if _, skip := p.excluded[field]; skip {
			continue
		}
		if containsFold(model.Stringify(v), term) {
			return true
		}
	}
	return false
}

// containsFold: s содержит lowerTerm без учёта регистра.
func containsFold(s, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(s), lowerTerm)
}

// Sort возвращает новый срез, стабильно отсортированный по возрастанию.
// При пустом Column порядок сохраняется.
func (p *Pipeline) Sort(records []model.Record, st SortState) []model.Record {
	out := make([]model.Record, len(records))
	copy(out, records)
	if st.Column == "" {
		return out
	}

	policy := p.PolicyFor(st.Column)
	sort.SliceStable(out, func(i, j int) bool {
		return Compare(out[i][st.Column], out[j][st.Column], policy) < 0
	})
	return out
}

// Compare сравнивает два значения поля по политике: -1, 0 или 1.
func Compare(a, b any, policy Policy) int {
	switch policy {
	case PolicyString:
		return strings.Compare(model.Stringify(a), model.Stringify(b))
	case PolicyNumeric:
		fa, okA := model.ParseNumber(a)
		fb, okB := model.ParseNumber(b)
		if okA && okB {
			return compareFloat(fa, fb)
		}
		return strings.Compare(model.Stringify(a), model.Stringify(b))
	}

	fa, okA := model.Number(a)
	fb, okB := model.Number(b)
	if okA && okB {
		return compareFloat(fa, fb)
	}

	sa, sb := model.Stringify(a), model.Stringify(b)
	if policy == PolicyFold {
		sa, sb = strings.ToLower(sa), strings.ToLower(sb)
	}
	return strings.Compare(sa, sb)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
