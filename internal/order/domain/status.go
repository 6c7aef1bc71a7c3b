package domain

// Status is the kitchen-driven order progression. The client only ever reads
// it to classify an order; the kitchen system owns every transition beyond
// pending.
type Status string

const (
	StatusPending           Status = "pending"
	StatusOrdenEnviada      Status = "orden_enviada"
	StatusOrdenRecibida     Status = "orden_recibida"
	StatusEnPreparacion     Status = "en_preparacion"
	StatusListaParaEntregar Status = "lista_para_entregar"
	StatusEnEntrega         Status = "en_entrega"
	StatusCompleted         Status = "completed"
	StatusConIncidencias    Status = "con_incidencias"
)

// rank orders the monotonic progression. con_incidencias sits outside it as
// the side branch reachable from any non-terminal state.
var rank = map[Status]int{
	StatusPending:           0,
	StatusOrdenEnviada:      1,
	StatusOrdenRecibida:     2,
	StatusEnPreparacion:     3,
	StatusListaParaEntregar: 4,
	StatusEnEntrega:         5,
	StatusCompleted:         6,
}

func (s Status) Valid() bool {
	if s == StatusConIncidencias {
		return true
	}
	_, ok := rank[s]
	return ok
}

// Editable orders are freely replaceable by the client.
func (s Status) Editable() bool {
	return s == StatusPending
}

// Sent orders are already with the kitchen: append-only from the client's
// perspective, the original lines immutable.
func (s Status) Sent() bool {
	switch s {
	case StatusOrdenEnviada, StatusOrdenRecibida, StatusEnPreparacion,
		StatusListaParaEntregar, StatusEnEntrega:
		return true
	}
	return false
}

// Terminal states are owned by the kitchen; the client never edits past them.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusConIncidencias
}

// Active orders follow the identity across login migrations. con_incidencias
// counts as active: an order with incidents still belongs to the session that
// placed it.
func (s Status) Active() bool {
	return s.Editable() || s.Sent() || s == StatusConIncidencias
}

// CanTransition reports whether next is a legal successor: strictly forward
// along the progression, or the side branch into con_incidencias from any
// non-terminal state.
func (s Status) CanTransition(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s.Terminal() {
		return false
	}
	if next == StatusConIncidencias {
		return true
	}
	return rank[next] == rank[s]+1
}
