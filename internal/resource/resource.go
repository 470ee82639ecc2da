// Пакет resource: описания сущностей консоли (корабли, порты, операции,
// заказы, продукты, клиенты, связи заказ-продукт, история заказов).
// Описание задаёт ключ идентичности, колонки поиска и сортировки,
// политику сравнения полей и роли, допущенные к каждой операции.
package resource

import (
	"sort"

	"github.com/bigkaa/portline/console/internal/domain/model"
	"github.com/bigkaa/portline/console/internal/domain/rbac"
	"github.com/bigkaa/portline/console/internal/listview"
)

// Action: операция над сущностью.
type Action string

// Операции над сущностью.
const (
	ActionList   Action = "list"
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Descriptor описывает одну сущность бэкенда.
type Descriptor struct {
	// Name: имя сущности и сегмент пути /api/<name>.
	Name string
	// Key: поля идентичности; составной ключ склеивается через "_".
	Key []string
	// Columns: колонки, доступные для поиска по колонке и сортировки.
	Columns []string
	// Policies: политика сравнения полей (недостающие получают Auto).
	Policies map[string]listview.Policy
	// Excluded: поля, не участвующие в поиске по всем полям.
	Excluded []string
	// Roles: допустимые роли по операциям.
	Roles map[Action]rbac.Set
	// HideCartItems: скрывать продукты, уже лежащие в корзине.
	HideCartItems bool
	// Relations: подколлекции, отбираемые бэкендом по родительской записи.
	Relations []Relation
}

// Relation: подколлекция сущности по родителю, GET /api/<name>/<parent>/<id>.
type Relation struct {
	// Parent: сегмент пути родителя (port, client).
	Parent string
	// Field: поле записи со ссылкой на родителя.
	Field string
	// Roles: роли, допущенные к подколлекции.
	Roles rbac.Set
	// OwnClient: клиент видит подколлекцию только для своего id_client.
	OwnClient bool
}

// Relation возвращает подколлекцию по имени родителя.
func (d Descriptor) Relation(parent string) (Relation, bool) {
	for _, r := range d.Relations {
		if r.Parent == parent {
			return r, true
		}
	}
	return Relation{}, false
}

// KeyFunc возвращает функцию ключа идентичности.
func (d Descriptor) KeyFunc() model.KeyFunc {
	return model.FieldsKey(d.Key...)
}

// Pipeline строит конвейер списка для сущности.
func (d Descriptor) Pipeline() *listview.Pipeline {
	policies := listview.DefaultPolicies()
	for k, v := range d.Policies {
		policies[k] = v
	}
	return listview.New(listview.Options{Policies: policies, Excluded: d.Excluded})
}

// Allowed возвращает роли, допущенные к операции.
// Для неописанной операции возвращается пустой набор (доступ запрещён).
func (d Descriptor) Allowed(a Action) rbac.Set {
	if s, ok := d.Roles[a]; ok {
		return s
	}
	return rbac.NewSet()
}

// HasColumn проверяет, что колонка доступна для поиска и сортировки.
func (d Descriptor) HasColumn(column string) bool {
	for _, c := range d.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// staffOnly: все операции только для сотрудников и администраторов.
func staffOnly() map[Action]rbac.Set {
	return map[Action]rbac.Set{
		ActionList:   rbac.Staff,
		ActionRead:   rbac.Staff,
		ActionCreate: rbac.Staff,
		ActionUpdate: rbac.Staff,
		ActionDelete: rbac.Staff,
	}
}

// catalog: чтение любому вошедшему, изменение сотрудникам.
func catalog() map[Action]rbac.Set {
	return map[Action]rbac.Set{
		ActionList:   rbac.AnyRole,
		ActionRead:   rbac.AnyRole,
		ActionCreate: rbac.Staff,
		ActionUpdate: rbac.Staff,
		ActionDelete: rbac.Staff,
	}
}

// registry: все известные сущности.
var registry = map[string]Descriptor{
	"ships": {
		Name:     "ships",
		Key:      []string{"id_ship"},
		Columns:  []string{"id_ship", "name", "capacity", "status", "created_at", "updated_at"},
		Policies: map[string]listview.Policy{"capacity": listview.PolicyNumeric},
		Roles:    catalog(),
	},
	"ports": {
		Name:    "ports",
		Key:     []string{"id_port"},
		Columns: []string{"id_port", "name", "location", "country"},
		Roles:   staffOnly(),
	},
	"operations": {
		Name:    "operations",
		Key:     []string{"id_operation"},
		Columns: []string{"id_operation", "name_of_operation", "operation_type", "date_of_operation", "id_ship", "id_port"},
		Roles:   staffOnly(),
	},
	"orders": {
		Name:    "orders",
		Key:     []string{"id_order"},
		Columns: []string{"id_order", "date_of_order", "status", "id_port", "id_client"},
		Roles: map[Action]rbac.Set{
			ActionList:   rbac.Staff,
			ActionRead:   rbac.Staff,
			ActionCreate: rbac.AnyRole,
			ActionUpdate: rbac.Staff,
			ActionDelete: rbac.Staff,
		},
		Relations: []Relation{
			{Parent: "port", Field: "id_port", Roles: rbac.Staff},
			{Parent: "client", Field: "id_client", Roles: rbac.AnyRole, OwnClient: true},
		},
	},
	"products": {
		Name:     "products",
		Key:      []string{"id_product"},
		Columns:  []string{"id_product", "name", "price", "weight", "id_port"},
		Policies: map[string]listview.Policy{"price": listview.PolicyNumeric, "weight": listview.PolicyNumeric},
		Excluded: []string{"image"},
		Roles:    catalog(),
		// Каталог не показывает то, что уже лежит в корзине.
		HideCartItems: true,
		Relations: []Relation{
			{Parent: "port", Field: "id_port", Roles: rbac.AnyRole},
		},
	},
	"clients": {
		Name:     "clients",
		Key:      []string{"id_client"},
		Columns:  []string{"id_client", "name", "address", "telephone_number", "email", "logon_name", "role"},
		Excluded: []string{"password"},
		Roles: map[Action]rbac.Set{
			ActionList:   rbac.Staff,
			ActionRead:   rbac.Staff,
			ActionCreate: rbac.AdminOnly,
			ActionUpdate: rbac.AdminOnly,
			ActionDelete: rbac.AdminOnly,
		},
	},
	"orders_products": {
		Name:     "orders_products",
		Key:      []string{"id_order", "id_product"},
		Columns:  []string{"id_order", "id_product", "quantity"},
		Policies: map[string]listview.Policy{"quantity": listview.PolicyNumeric},
		Roles: map[Action]rbac.Set{
			ActionList:   rbac.Staff,
			ActionRead:   rbac.Staff,
			ActionCreate: rbac.AnyRole,
			ActionUpdate: rbac.Staff,
			ActionDelete: rbac.Staff,
		},
	},
	"order_histories": {
		Name:    "order_histories",
		Key:     []string{"id_history"},
		Columns: []string{"id_history", "description", "date", "Order_id_order"},
		Roles:   staffOnly(),
	},
}

// Lookup возвращает описание сущности по имени.
func Lookup(name string) (Descriptor, bool) {
	d, ok := registry[name]
	return d, ok
}

// Names возвращает имена всех сущностей по алфавиту.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
