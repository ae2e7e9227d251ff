package cart

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

// Op — тип операции, породившей снимок.
type Op string

const (
	OpHydrate Op = "hydrate"
	OpAdd     Op = "add"
	OpUpdate  Op = "update"
	OpRemove  Op = "remove"
	OpClear   Op = "clear"
	OpResync  Op = "resync"
)

// Change описывает мутацию, после которой был построен снимок.
type Change struct {
	Op  Op
	Key domain.LineKey
	// Quantity — итоговое количество по ключу; 0 означает, что позиции нет.
	Quantity int
	// Applied=false для no-op вызовов (отсутствующий ключ, некорректный ввод, упор в лимит).
	Applied bool
}

// Snapshot — неизменяемое представление корзины на момент построения.
// Все методы возвращают копии, поэтому изменения на стороне вызывающего не влияют на store.
type Snapshot struct {
	lines     []domain.CartLine
	itemCount int
	subtotal  decimal.Decimal
	revision  uint64
	change    Change
}

func newSnapshot(lines []domain.CartLine, revision uint64, change Change) Snapshot {
	cp := make([]domain.CartLine, len(lines))
	itemCount := 0
	subtotal := decimal.Zero
	for i, line := range lines {
		cp[i] = line.Clone()
		itemCount += line.Quantity
		// Округляем каждую позицию отдельно, чтобы не копить погрешность на сумме.
		subtotal = subtotal.Add(line.LineTotal())
	}

	return Snapshot{
		lines:     cp,
		itemCount: itemCount,
		subtotal:  subtotal,
		revision:  revision,
		change:    change,
	}
}

// Lines возвращает позиции в порядке добавления.
func (s Snapshot) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(s.lines))
	for i, line := range s.lines {
		out[i] = line.Clone()
	}
	return out
}

// Line возвращает позицию по ключу.
func (s Snapshot) Line(productID string, size domain.Size) (domain.CartLine, bool) {
	key := domain.LineKey{ProductID: productID, Size: size}
	for _, line := range s.lines {
		if line.Key() == key {
			return line.Clone(), true
		}
	}
	return domain.CartLine{}, false
}

// LineCount — количество различных позиций.
func (s Snapshot) LineCount() int { return len(s.lines) }

// ItemCount — сумма количеств по всем позициям.
func (s Snapshot) ItemCount() int { return s.itemCount }

// Subtotal — сумма округлённых итогов по позициям.
func (s Snapshot) Subtotal() decimal.Decimal { return s.subtotal }

// IsEmpty сообщает, что в корзине нет позиций.
func (s Snapshot) IsEmpty() bool { return len(s.lines) == 0 }

// Revision монотонно растёт с каждым вызовом мутации.
func (s Snapshot) Revision() uint64 { return s.revision }

// Change возвращает описание последней мутации.
func (s Snapshot) Change() Change { return s.change }
