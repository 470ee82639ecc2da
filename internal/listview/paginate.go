package listview

import (
	"github.com/bigkaa/portline/console/internal/domain/model"
)

// DefaultPageSize: размер страницы по умолчанию.
const DefaultPageSize = 10

// TotalPages возвращает число страниц: ceil(n/size), минимум 1.
// Пустой набор показывается как одна пустая страница.
func TotalPages(n, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := (n + size - 1) / size
	if total < 1 {
		total = 1
	}
	return total
}

// Paginate возвращает срез страницы page (нумерация с 1).
// Номер страницы зажимается в [1, TotalPages].
func Paginate(view []model.Record, page, size int) []model.Record {
	if size <= 0 {
		size = DefaultPageSize
	}
	page = clamp(page, 1, TotalPages(len(view), size))

	start := (page - 1) * size
	if start >= len(view) {
		return []model.Record{}
	}
	end := start + size
	if end > len(view) {
		end = len(view)
	}
	out := make([]model.Record, end-start)
	copy(out, view[start:end])
	return out
}

// Pager хранит состояние пагинации {pageSize, currentPage} и поддерживает
// инвариант: currentPage всегда в [1, max(1, ceil(total/pageSize))].
type Pager struct {
	size    int
	current int
	total   int
}

// NewPager создаёт пагинатор на первой странице.
func NewPager(size int) *Pager {
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Pager{size: size, current: 1}
}

// SetTotal задаёт размер отфильтрованного набора и зажимает текущую страницу.
func (p *Pager) SetTotal(n int) {
	if n < 0 {
		n = 0
	}
	p.total = n
	p.current = clamp(p.current, 1, p.TotalPages())
}

// SetPageSize меняет размер страницы и всегда сбрасывает на первую страницу.
// Неположительный размер игнорируется.
func (p *Pager) SetPageSize(size int) {
	if size <= 0 {
		return
	}
	p.size = size
	p.current = 1
}

// Next переходит на следующую страницу. На последней странице ничего не делает.
func (p *Pager) Next() bool {
	if p.current >= p.TotalPages() {
		return false
	}
	p.current++
	return true
}

// Prev переходит на предыдущую страницу. На первой странице ничего не делает.
func (p *Pager) Prev() bool {
	if p.current <= 1 {
		return false
	}
	p.current--
	return true
}

// GoTo переходит на страницу page с зажатием в допустимый диапазон.
func (p *Pager) GoTo(page int) {
	p.current = clamp(page, 1, p.TotalPages())
}

// Current возвращает номер текущей страницы.
func (p *Pager) Current() int { return p.current }

// Size возвращает размер страницы.
func (p *Pager) Size() int { return p.size }

// Total возвращает размер отфильтрованного набора.
func (p *Pager) Total() int { return p.total }

// TotalPages возвращает число страниц.
func (p *Pager) TotalPages() int { return TotalPages(p.total, p.size) }

// HasNext сообщает, доступна ли кнопка "вперёд".
func (p *Pager) HasNext() bool { return p.current < p.TotalPages() }

// HasPrev сообщает, доступна ли кнопка "назад".
func (p *Pager) HasPrev() bool { return p.current > 1 }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
