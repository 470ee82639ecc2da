package listview

import (
	"github.com/bigkaa/portline/console/internal/domain/model"
)

// Append добавляет созданную запись в конец исходной коллекции.
func Append(source []model.Record, rec model.Record) []model.Record {
	out := make([]model.Record, 0, len(source)+1)
	out = append(out, source...)
	return append(out, rec)
}

// ReplaceByKey заменяет запись с тем же ключом на месте.
// Если запись не найдена, коллекция возвращается без изменений и false.
func ReplaceByKey(source []model.Record, rec model.Record, key model.KeyFunc) ([]model.Record, bool) {
	id := key(rec)
	out := make([]model.Record, len(source))
	copy(out, source)
	if id == "" {
		return out, false
	}
	for i, r := range out {
		if key(r) == id {
			out[i] = rec
			return out, true
		}
	}
	return out, false
}

// RemoveByKey удаляет ровно одну запись с ключом id, порядок остальных сохраняется.
func RemoveByKey(source []model.Record, id string, key model.KeyFunc) ([]model.Record, bool) {
	out := make([]model.Record, 0, len(source))
	removed := false
	for _, r := range source {
		if !removed && id != "" && key(r) == id {
			removed = true
			continue
		}
		out = append(out, r)
	}
	return out, removed
}
