package listview

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/bigkaa/portline/console/internal/domain/model"
)

func clients() []model.Record {
	return []model.Record{
		{"id_client": float64(1), "name": "Zed", "email": "Zed@x.com", "address": "Odessa", "telephone_number": "380501112233"},
		{"id_client": float64(2), "name": "amy", "email": "amy@x.com", "address": "Gdansk", "telephone_number": nil},
		{"id_client": float64(3), "name": "Bob", "email": "bob@port.org", "address": "Riga", "password": "secret-odessa"},
	}
}

func ids(records []model.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.String("id_client")
	}
	return out
}

func equalIDs(a, b []string) bool {
	return strings.Join(a, ",") == strings.Join(b, ",")
}

func TestFilter(t *testing.T) {
	p := New(Options{Excluded: []string{"password"}})

	tests := []struct {
		name   string
		search Search
		want   []string
	}{
		{name: "пустой терм пропускает всё", search: Search{}, want: []string{"1", "2", "3"}},
		{name: "колонка, подстрока без регистра", search: Search{Term: "DES", Column: "address"}, want: []string{"1"}},
		{name: "колонка, nil не совпадает", search: Search{Term: "3", Column: "telephone_number"}, want: []string{"1"}},
		{name: "колонка отсутствует", search: Search{Term: "a", Column: "country"}, want: []string{}},
		{name: "все поля", search: Search{Term: "X.CoM"}, want: []string{"1", "2"}},
		{name: "все поля, число", search: Search{Term: "2"}, want: []string{"1", "2"}},
		{name: "исключённое поле не ищется", search: Search{Term: "secret"}, want: []string{}},
		{name: "колонку password можно выбрать явно", search: Search{Term: "secret", Column: "password"}, want: []string{"3"}},
		{name: "не префикс, а подстрока", search: Search{Term: "ans", Column: "address"}, want: []string{"2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(p.Filter(clients(), tt.search))
			if !equalIDs(got, tt.want) {
				t.Errorf("Filter(%+v) = %v, хотели %v", tt.search, got, tt.want)
			}
		})
	}
}

// Для любых записей поиск по всем полям возвращает ровно те записи,
// у которых хотя бы одно поле содержит терм без учёта регистра.
func TestFilter_SubstringProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []string{"a", "B", "c", "D", "1", "2"}
	word := func(n int) string {
		var sb strings.Builder
		for i := 0; i < n; i++ {
			sb.WriteString(alphabet[rng.Intn(len(alphabet))])
		}
		return sb.String()
	}

	p := New(Options{})
	for iter := 0; iter < 200; iter++ {
		source := make([]model.Record, rng.Intn(12))
		for i := range source {
			source[i] = model.Record{"id": float64(i), "f1": word(rng.Intn(5)), "f2": word(rng.Intn(5))}
			if rng.Intn(4) == 0 {
				source[i]["f3"] = nil
			}
		}
		term := word(1 + rng.Intn(2))

		got := p.Filter(source, Search{Term: term})

		var want []model.Record
		for _, r := range source {
			for _, v := range r {
				if strings.Contains(strings.ToLower(model.Stringify(v)), strings.ToLower(term)) {
					want = append(want, r)
					break
				}
			}
		}
		if len(got) != len(want) {
			t.Fatalf("итерация %d: терм %q, получили %d записей, хотели %d", iter, term, len(got), len(want))
		}
		for i := range got {
			if got[i]["id"] != want[i]["id"] {
				t.Fatalf("итерация %d: порядок нарушен на позиции %d", iter, i)
			}
		}
	}
}

// Фильтр B после фильтра A даёт тот же результат, что фильтр B по исходной коллекции.
func TestView_RecomputeFromSource(t *testing.T) {
	v := NewView(New(Options{}), model.FieldsKey("id_client"), 10)
	v.SetSource(clients())

	v.SetSearch(Search{Term: "riga", Column: "address"})
	if got := ids(v.Derived()); !equalIDs(got, []string{"3"}) {
		t.Fatalf("после фильтра A: %v", got)
	}

	v.SetSearch(Search{Term: "x.com"})
	want := ids(New(Options{}).Filter(clients(), Search{Term: "x.com"}))
	if got := ids(v.Derived()); !equalIDs(got, want) {
		t.Errorf("фильтр B после A = %v, фильтр B по источнику = %v", got, want)
	}
	if !equalIDs(want, []string{"1", "2"}) {
		t.Errorf("неожиданный результат фильтра B: %v", want)
	}
}

func TestSort_Stable(t *testing.T) {
	source := []model.Record{
		{"id_client": float64(1), "status": "active"},
		{"id_client": float64(2), "status": "idle"},
		{"id_client": float64(3), "status": "active"},
		{"id_client": float64(4), "status": nil},
		{"id_client": float64(5), "status": "active"},
		{"id_client": float64(6), "status": "idle"},
	}
	got := ids(New(Options{}).Sort(source, SortState{Column: "status"}))
	want := []string{"4", "1", "3", "5", "2", "6"}
	if !equalIDs(got, want) {
		t.Errorf("Sort(status) = %v, хотели %v", got, want)
	}
}

func TestSort_EmptyColumnKeepsOrder(t *testing.T) {
	got := ids(New(Options{}).Sort(clients(), SortState{}))
	if !equalIDs(got, []string{"1", "2", "3"}) {
		t.Errorf("порядок изменился без сортировки: %v", got)
	}
}

func TestSort_EmailCaseInsensitive(t *testing.T) {
	p := New(Options{})
	source := []model.Record{
		{"id_client": float64(1), "name": "Zed", "email": "Zed@x.com"},
		{"id_client": float64(2), "name": "amy", "email": "amy@x.com"},
	}

	byEmail := p.Sort(source, SortState{Column: "email"})
	if byEmail[0].String("email") != "amy@x.com" || byEmail[1].String("email") != "Zed@x.com" {
		t.Errorf("сортировка по email: %v", byEmail)
	}

	byName := p.Sort(source, SortState{Column: "name"})
	if byName[0].String("name") != "Zed" || byName[1].String("name") != "amy" {
		t.Errorf("сортировка по name должна учитывать регистр: %v", byName)
	}

	folded := New(Options{Policies: map[string]Policy{"name": PolicyFold}})
	byName = folded.Sort(source, SortState{Column: "name"})
	if byName[0].String("name") != "amy" {
		t.Errorf("PolicyFold для name не применился: %v", byName)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		a, b   any
		policy Policy
		want   int
	}{
		{name: "числа численно", a: float64(9), b: float64(10), policy: PolicyAuto, want: -1},
		{name: "строки-числа лексикографически", a: "9", b: "10", policy: PolicyAuto, want: 1},
		{name: "numeric разбирает строки", a: "9", b: "10", policy: PolicyNumeric, want: -1},
		{name: "число и строка", a: float64(5), b: "abc", policy: PolicyAuto, want: -1},
		{name: "nil как пустая строка", a: nil, b: "a", policy: PolicyAuto, want: -1},
		{name: "string для чисел", a: float64(9), b: float64(10), policy: PolicyString, want: 1},
		{name: "регистр учитывается", a: "Zed", b: "amy", policy: PolicyAuto, want: -1},
		{name: "fold", a: "Zed", b: "amy", policy: PolicyFold, want: 1},
		{name: "равные", a: "x", b: "x", policy: PolicyAuto, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b, tt.policy); got != tt.want {
				t.Errorf("Compare(%v, %v, %s) = %d, хотели %d", tt.a, tt.b, tt.policy, got, tt.want)
			}
		})
	}
}
