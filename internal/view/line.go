package view

import (
	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

// PlaceholderImageURL показывается вместо отсутствующего изображения товара.
const PlaceholderImageURL = "/static/placeholder.svg"

// QuantityFunc вызывается при изменении количества позиции.
type QuantityFunc func(productID string, size domain.Size, quantity int)

// RemoveFunc вызывается при удалении позиции.
type RemoveFunc func(productID string, size domain.Size)

// LineProps — всё, что нужно шаблону для отрисовки одной позиции.
type LineProps struct {
	ProductID    string
	Slug         string
	Title        string
	Size         domain.Size
	SizeLabel    string
	Quantity     int
	MaxQuantity  int
	UnitPrice    string
	LineTotal    string
	ImageURL     string
	ImageAlt     string
	Placeholder  bool
	CanIncrement bool
	CanDecrement bool
}

// Line — компонент позиции корзины. Бизнес-логики в нём нет:
// только блокировка «+» на лимите и «−» на единице.
type Line struct {
	line     domain.CartLine
	onUpdate QuantityFunc
	onRemove RemoveFunc
	currency string
}

// NewLine создаёт компонент. Колбэки могут быть nil.
func NewLine(line domain.CartLine, onUpdate QuantityFunc, onRemove RemoveFunc, currency string) Line {
	return Line{
		line:     line.Clone(),
		onUpdate: onUpdate,
		onRemove: onRemove,
		currency: currency,
	}
}

// Props строит данные для отображения.
func (l Line) Props() LineProps {
	props := LineProps{
		ProductID:    l.line.ProductID,
		Slug:         l.line.Slug,
		Title:        l.line.Title,
		Size:         l.line.Size,
		Quantity:     l.line.Quantity,
		MaxQuantity:  domain.MaxItemQuantity,
		UnitPrice:    FormatPrice(l.line.Price, l.currency),
		LineTotal:    FormatPrice(l.line.LineTotal(), l.currency),
		CanIncrement: l.line.Quantity < domain.MaxItemQuantity,
		CanDecrement: l.line.Quantity > domain.MinItemQuantity,
	}
	if size, ok := l.line.Size.Value(); ok {
		props.SizeLabel = size
	}

	if img := l.line.PrimaryImage; img != nil && img.URL != "" {
		props.ImageURL = img.URL
		props.ImageAlt = img.AltText
	} else {
		props.ImageURL = PlaceholderImageURL
		props.Placeholder = true
	}
	if props.ImageAlt == "" {
		props.ImageAlt = l.line.Title
	}

	return props
}

// Increment запрашивает quantity+1. На лимите ничего не делает и возвращает false.
func (l Line) Increment() bool {
	if l.line.Quantity >= domain.MaxItemQuantity || l.onUpdate == nil {
		return false
	}
	l.onUpdate(l.line.ProductID, l.line.Size, l.line.Quantity+1)
	return true
}

// Decrement запрашивает quantity-1. На единице ничего не делает и возвращает false.
func (l Line) Decrement() bool {
	if l.line.Quantity <= domain.MinItemQuantity || l.onUpdate == nil {
		return false
	}
	l.onUpdate(l.line.ProductID, l.line.Size, l.line.Quantity-1)
	return true
}

// Remove запрашивает удаление позиции с её собственным вариантом, включая пустой.
func (l Line) Remove() {
	if l.onRemove == nil {
		return
	}
	l.onRemove(l.line.ProductID, l.line.Size)
}
