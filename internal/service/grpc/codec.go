package grpcsvc

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/cartstore/internal/cart"
	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

// SnapshotToStruct переводит снимок корзины в google.protobuf.Struct.
// Денежные суммы передаются строками с двумя знаками.
func SnapshotToStruct(snap cart.Snapshot) (*structpb.Struct, error) {
	lines := make([]any, 0, snap.LineCount())
	for _, line := range snap.Lines() {
		lines = append(lines, lineToMap(line))
	}

	msg, err := structpb.NewStruct(map[string]any{
		"revision":   float64(snap.Revision()),
		"line_count": snap.LineCount(),
		"item_count": snap.ItemCount(),
		"subtotal":   snap.Subtotal().StringFixed(domain.MinorUnitScale),
		"is_empty":   snap.IsEmpty(),
		"lines":      lines,
	})
	if err != nil {
		return nil, fmt.Errorf("build cart struct: %w", err)
	}
	return msg, nil
}

func lineToMap(line domain.CartLine) map[string]any {
	var size any
	if value, ok := line.Size.Value(); ok {
		size = value
	}

	var image any
	if img := line.PrimaryImage; img != nil {
		image = map[string]any{
			"id":       img.ID,
			"url":      img.URL,
			"alt_text": img.AltText,
		}
	}

	return map[string]any{
		"product_id":    line.ProductID,
		"slug":          line.Slug,
		"title":         line.Title,
		"price":         line.Price.StringFixed(domain.MinorUnitScale),
		"size":          size,
		"quantity":      line.Quantity,
		"line_total":    line.LineTotal().StringFixed(domain.MinorUnitScale),
		"primary_image": image,
	}
}
