package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// MaxItemQuantity — верхняя граница количества единиц в одной позиции корзины.
	// Значение является частью контракта: UI использует его для блокировки кнопки «+».
	MaxItemQuantity = 99
	// MinItemQuantity — минимальное количество, при котором позиция существует.
	MinItemQuantity = 1
	// MinorUnitScale — число знаков после запятой у минимальной денежной единицы.
	MinorUnitScale int32 = 2
)

// Size — необязательный вариант товара (например, размер одежды).
// Нулевое значение означает «без варианта» и не равно ни одной строке, включая пустую.
type Size struct {
	value string
	valid bool
}

// NoSize — позиция без оси вариантов.
var NoSize = Size{}

// SizeOf возвращает заданный вариант товара.
func SizeOf(value string) Size {
	return Size{value: value, valid: true}
}

// Value возвращает значение варианта и признак его наличия.
func (s Size) Value() (string, bool) {
	return s.value, s.valid
}

// IsNull сообщает, что вариант не задан.
func (s Size) IsNull() bool {
	return !s.valid
}

func (s Size) String() string {
	if !s.valid {
		return "<none>"
	}
	return s.value
}

// MarshalJSON кодирует отсутствующий вариант как null.
func (s Size) MarshalJSON() ([]byte, error) {
	if !s.valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON принимает строку или null; любые другие типы — ошибка.
func (s *Size) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = NoSize
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("size must be a string or null: %w", err)
	}
	*s = SizeOf(value)
	return nil
}

// LineKey — уникальный ключ позиции корзины: пара (товар, вариант).
type LineKey struct {
	ProductID string
	Size      Size
}

// Image — денормализованное изображение товара для отображения.
type Image struct {
	ID        string
	URL       string
	AltText   string
	IsPrimary bool
	SortOrder int
}

// Clone возвращает независимую копию изображения (nil остаётся nil).
func (i *Image) Clone() *Image {
	if i == nil {
		return nil
	}
	cp := *i
	return &cp
}

// Product — данные каталога, которые корзина снимает в момент добавления.
type Product struct {
	ID           string
	Slug         string
	Title        string
	Price        decimal.Decimal
	PrimaryImage *Image
}

// Validate проверяет, что товар можно положить в корзину.
func (p Product) Validate() error {
	if p.ID == "" {
		return ErrProductIDRequired
	}
	if p.Price.IsNegative() {
		return ErrPriceNegative
	}
	return nil
}

// CartLine представляет одну позицию корзины.
type CartLine struct {
	ProductID string
	Slug      string
	Title     string
	// Price — цена за единицу, зафиксированная при добавлении; каталог её больше не меняет.
	Price        decimal.Decimal
	Size         Size
	Quantity     int
	PrimaryImage *Image
}

// NewCartLine создаёт позицию из товара каталога.
func NewCartLine(product Product, size Size, quantity int) CartLine {
	return CartLine{
		ProductID:    product.ID,
		Slug:         product.Slug,
		Title:        product.Title,
		Price:        product.Price,
		Size:         size,
		Quantity:     quantity,
		PrimaryImage: product.PrimaryImage.Clone(),
	}
}

// Key возвращает ключ идентичности позиции.
func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Size: l.Size}
}

// LineTotal — price × quantity, округлённое до минимальной денежной единицы (half-up).
func (l CartLine) LineTotal() decimal.Decimal {
	return RoundMinor(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
}

// Clone возвращает копию позиции без общих указателей.
func (l CartLine) Clone() CartLine {
	l.PrimaryImage = l.PrimaryImage.Clone()
	return l
}

// ValidateInvariants проверяет инварианты позиции и возвращает список замечаний.
func (l CartLine) ValidateInvariants() []error {
	var errs []error

	if l.ProductID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if l.Price.IsNegative() {
		errs = append(errs, ErrPriceNegative)
	}
	if l.Quantity < MinItemQuantity || l.Quantity > MaxItemQuantity {
		errs = append(errs, ErrQuantityInvalid)
	}

	return errs
}

// ClampQuantity приводит количество к границам [MinItemQuantity-1, MaxItemQuantity].
// Результат 0 означает, что позиции быть не должно.
func ClampQuantity(quantity int) int {
	switch {
	case quantity < MinItemQuantity:
		return 0
	case quantity > MaxItemQuantity:
		return MaxItemQuantity
	default:
		return quantity
	}
}

// RoundMinor округляет сумму до минимальной денежной единицы.
// decimal.Round округляет половину от нуля; для неотрицательных цен это round half-up.
func RoundMinor(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MinorUnitScale)
}
