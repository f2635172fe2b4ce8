package ledger

import "fmt"

// Side identifica um dos dois lados apostáveis de um evento.
type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// ParseSide converte "A"/"B" em Side.
func ParseSide(v string) (Side, error) {
	switch v {
	case "A", "a":
		return SideA, nil
	case "B", "b":
		return SideB, nil
	}
	return SideA, fmt.Errorf("invalid side %q", v)
}

// Status representa o estado do ciclo de vida de um evento.
type Status int

const (
	StatusOpen Status = iota
	StatusResolved
	StatusCancelled
)

func (st Status) String() string {
	switch st {
	case StatusOpen:
		return "OPEN"
	case StatusResolved:
		return "RESOLVED"
	case StatusCancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// Terminal indica se o estado é final (nenhuma transição sai dele).
func (st Status) Terminal() bool {
	return st == StatusResolved || st == StatusCancelled
}
