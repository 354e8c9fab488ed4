package routing

import "strings"

type Target string

const (
	TargetGeneric     Target = "Generic"
	TargetProducts    Target = "Products"
	TargetOrders      Target = "Orders"
	TargetLogistic    Target = "Logistic"
	TargetAppointment Target = "Appointment"
)

// Specialist is the prompt a routing target hands the turn to.
type Specialist struct {
	Target      Target
	DisplayName string
	PromptID    int64
	Service     string
}

// Table maps routing keywords to specialists. It is built once and never mutated.
type Table struct {
	entries map[string]Specialist
	order   []Target
}

type SpecialistPrompts struct {
	Products    int64
	Orders      int64
	Logistic    int64
	Appointment int64
}

func NewTable(ids SpecialistPrompts) Table {
	list := []Specialist{
		{Target: TargetProducts, DisplayName: "Product specialist", PromptID: ids.Products, Service: "products"},
		{Target: TargetOrders, DisplayName: "Order specialist", PromptID: ids.Orders, Service: "orders"},
		{Target: TargetLogistic, DisplayName: "Logistics specialist", PromptID: ids.Logistic, Service: "logistic"},
		{Target: TargetAppointment, DisplayName: "Appointment specialist", PromptID: ids.Appointment, Service: "appointment"},
	}

	t := Table{entries: make(map[string]Specialist, len(list))}
	for _, s := range list {
		t.entries[strings.ToLower(string(s.Target))] = s
		t.order = append(t.order, s.Target)
	}
	return t
}

// Lookup matches target names case-insensitively.
func (t Table) Lookup(target string) (Specialist, bool) {
	s, ok := t.entries[strings.ToLower(strings.TrimSpace(target))]
	return s, ok
}

func (t Table) Targets() []Specialist {
	out := make([]Specialist, 0, len(t.order))
	for _, target := range t.order {
		out = append(out, t.entries[strings.ToLower(string(target))])
	}
	return out
}

func isGeneric(target string) bool {
	target = strings.TrimSpace(target)
	return target == "" || strings.EqualFold(target, string(TargetGeneric))
}
