package view

import (
	"fmt"
	"html/template"
	"io"

	"github.com/vladislavdragonenkov/cartstore/internal/cart"
)

// PageProps — данные страницы корзины.
type PageProps struct {
	Lines     []LineProps
	LineCount int
	ItemCount int
	Subtotal  string
	Revision  uint64
	Empty     bool
}

// BuildPage превращает снимок в данные страницы. Колбэки не нужны:
// HTML-форма отправляет те же аргументы, что передали бы Increment/Decrement/Remove.
func BuildPage(snap cart.Snapshot, currency string) PageProps {
	lines := snap.Lines()
	page := PageProps{
		Lines:     make([]LineProps, 0, len(lines)),
		LineCount: snap.LineCount(),
		ItemCount: snap.ItemCount(),
		Subtotal:  FormatPrice(snap.Subtotal(), currency),
		Revision:  snap.Revision(),
		Empty:     snap.IsEmpty(),
	}
	for _, line := range lines {
		page.Lines = append(page.Lines, NewLine(line, nil, nil, currency).Props())
	}
	return page
}

var (
	templateFuncs = template.FuncMap{
		"inc": func(n int) int { return n + 1 },
		"dec": func(n int) int { return n - 1 },
	}
	lineTemplate = template.Must(template.New("line").Funcs(templateFuncs).Parse(lineHTML))
	pageTemplate = template.Must(template.Must(lineTemplate.Clone()).New("page").Parse(pageHTML))
)

// RenderLine пишет HTML-фрагмент одной позиции.
func RenderLine(w io.Writer, props LineProps) error {
	if err := lineTemplate.ExecuteTemplate(w, "line", props); err != nil {
		return fmt.Errorf("render cart line: %w", err)
	}
	return nil
}

// RenderPage пишет HTML-страницу корзины.
func RenderPage(w io.Writer, page PageProps) error {
	if err := pageTemplate.ExecuteTemplate(w, "page", page); err != nil {
		return fmt.Errorf("render cart page: %w", err)
	}
	return nil
}

const lineHTML = `<li class="cart-line" data-product-id="{{.ProductID}}">
  <img src="{{.ImageURL}}" alt="{{.ImageAlt}}"{{if .Placeholder}} class="placeholder"{{end}}>
  <a href="/products/{{.Slug}}">{{.Title}}</a>
  {{- if .SizeLabel}} <span class="size">{{.SizeLabel}}</span>{{end}}
  <span class="unit-price">{{.UnitPrice}}</span>
  <form method="post" action="/cart/items/quantity">
    <input type="hidden" name="product_id" value="{{.ProductID}}">
    {{- if not .Size.IsNull}}<input type="hidden" name="size" value="{{.SizeLabel}}">{{end}}
    <button name="quantity" value="{{dec .Quantity}}"{{if not .CanDecrement}} disabled{{end}}>-</button>
    <span class="quantity">{{.Quantity}}</span>
    <button name="quantity" value="{{inc .Quantity}}"{{if not .CanIncrement}} disabled{{end}}>+</button>
  </form>
  <form method="post" action="/cart/items/remove">
    <input type="hidden" name="product_id" value="{{.ProductID}}">
    {{- if not .Size.IsNull}}<input type="hidden" name="size" value="{{.SizeLabel}}">{{end}}
    <button>Remove</button>
  </form>
  <span class="line-total">{{.LineTotal}}</span>
</li>`

const pageHTML = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Cart</title></head>
<body>
<h1>Cart ({{.ItemCount}})</h1>
{{- if .Empty}}
<p class="empty">Your cart is empty.</p>
{{- else}}
<ul class="cart-lines">
{{- range .Lines}}
{{template "line" .}}
{{- end}}
</ul>
<p class="subtotal">Subtotal: {{.Subtotal}}</p>
<form method="post" action="/cart/clear"><button>Clear cart</button></form>
{{- end}}
</body>
</html>`
