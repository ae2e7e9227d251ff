package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

// SchemaVersion — единственная версия сохранённого состояния, которой адаптер доверяет.
const SchemaVersion = 1

var lineFields = []string{"productId", "slug", "title", "price", "size", "quantity", "primaryImage"}

type payloadRecord struct {
	Version int          `json:"version"`
	Lines   []lineRecord `json:"lines"`
}

type lineRecord struct {
	ProductID    string          `json:"productId"`
	Slug         string          `json:"slug"`
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	Size         domain.Size     `json:"size"`
	Quantity     int             `json:"quantity"`
	PrimaryImage *imageRecord    `json:"primaryImage"`
}

type imageRecord struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	AltText   string `json:"altText"`
	IsPrimary bool   `json:"isPrimary"`
	SortOrder int    `json:"sortOrder"`
}

// Encode сериализует позиции корзины. Агрегаты не сохраняются: они пересчитываются при чтении.
func Encode(lines []domain.CartLine) ([]byte, error) {
	record := payloadRecord{
		Version: SchemaVersion,
		Lines:   make([]lineRecord, 0, len(lines)),
	}
	for _, line := range lines {
		lr := lineRecord{
			ProductID: line.ProductID,
			Slug:      line.Slug,
			Title:     line.Title,
			Price:     line.Price,
			Size:      line.Size,
			Quantity:  line.Quantity,
		}
		if img := line.PrimaryImage; img != nil {
			lr.PrimaryImage = &imageRecord{
				ID:        img.ID,
				URL:       img.URL,
				AltText:   img.AltText,
				IsPrimary: img.IsPrimary,
				SortOrder: img.SortOrder,
			}
		}
		record.Lines = append(record.Lines, lr)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal cart payload: %w", err)
	}
	return data, nil
}

// Decode строго разбирает сохранённое состояние.
// Любое расхождение со схемой возвращает ErrCorruptPayload, чужая версия — ErrUnsupportedSchemaVersion.
func Decode(data []byte) ([]domain.CartLine, error) {
	// Версию читаем до строгой проверки: у чужой версии могут быть другие поля.
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, corrupt("envelope: %v", err)
	}
	if probe.Version == nil {
		return nil, corrupt("version is missing")
	}
	if *probe.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnsupportedSchemaVersion, *probe.Version)
	}

	var envelope struct {
		Version int             `json:"version"`
		Lines   json.RawMessage `json:"lines"`
	}
	if err := decodeStrict(data, &envelope); err != nil {
		return nil, corrupt("envelope: %v", err)
	}
	if isNullOrEmpty(envelope.Lines) {
		return nil, corrupt("lines are missing")
	}

	var rawLines []map[string]json.RawMessage
	if err := json.Unmarshal(envelope.Lines, &rawLines); err != nil {
		return nil, corrupt("lines: %v", err)
	}

	lines := make([]domain.CartLine, 0, len(rawLines))
	seen := make(map[domain.LineKey]struct{}, len(rawLines))
	for i, raw := range rawLines {
		line, err := decodeLine(raw)
		if err != nil {
			return nil, corrupt("line %d: %v", i, err)
		}
		if errs := line.ValidateInvariants(); len(errs) != 0 {
			return nil, corrupt("line %d: %v", i, errors.Join(errs...))
		}
		if _, dup := seen[line.Key()]; dup {
			return nil, corrupt("line %d: %v", i, domain.ErrDuplicateLine)
		}
		seen[line.Key()] = struct{}{}
		lines = append(lines, line)
	}

	return lines, nil
}

func decodeLine(raw map[string]json.RawMessage) (domain.CartLine, error) {
	if err := requireExactFields(raw, lineFields); err != nil {
		return domain.CartLine{}, err
	}

	var (
		line domain.CartLine
		err  error
	)
	if line.ProductID, err = decodeString(raw["productId"]); err != nil {
		return domain.CartLine{}, fmt.Errorf("productId: %w", err)
	}
	if line.Slug, err = decodeString(raw["slug"]); err != nil {
		return domain.CartLine{}, fmt.Errorf("slug: %w", err)
	}
	if line.Title, err = decodeString(raw["title"]); err != nil {
		return domain.CartLine{}, fmt.Errorf("title: %w", err)
	}
	if isNullOrEmpty(raw["price"]) {
		return domain.CartLine{}, errors.New("price: null")
	}
	if err := json.Unmarshal(raw["price"], &line.Price); err != nil {
		return domain.CartLine{}, fmt.Errorf("price: %w", err)
	}
	if err := json.Unmarshal(raw["size"], &line.Size); err != nil {
		return domain.CartLine{}, fmt.Errorf("size: %w", err)
	}
	if isNullOrEmpty(raw["quantity"]) {
		return domain.CartLine{}, errors.New("quantity: null")
	}
	if err := json.Unmarshal(raw["quantity"], &line.Quantity); err != nil {
		return domain.CartLine{}, fmt.Errorf("quantity: %w", err)
	}
	if line.PrimaryImage, err = decodeImage(raw["primaryImage"]); err != nil {
		return domain.CartLine{}, fmt.Errorf("primaryImage: %w", err)
	}

	return line, nil
}

func decodeImage(raw json.RawMessage) (*domain.Image, error) {
	if isNullOrEmpty(raw) {
		return nil, nil
	}

	var rec struct {
		ID        *string `json:"id"`
		URL       *string `json:"url"`
		AltText   *string `json:"altText"`
		IsPrimary *bool   `json:"isPrimary"`
		SortOrder *int    `json:"sortOrder"`
	}
	if err := decodeStrict(raw, &rec); err != nil {
		return nil, err
	}
	// Каталог допускает изображение без id, поэтому проверяется только наличие полей.
	if rec.ID == nil {
		return nil, errors.New("id is missing")
	}
	if rec.URL == nil {
		return nil, errors.New("url is missing")
	}

	img := &domain.Image{ID: *rec.ID, URL: *rec.URL}
	if rec.AltText != nil {
		img.AltText = *rec.AltText
	}
	if rec.IsPrimary != nil {
		img.IsPrimary = *rec.IsPrimary
	}
	if rec.SortOrder != nil {
		img.SortOrder = *rec.SortOrder
	}
	return img, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after json value")
	}
	return nil
}

func decodeString(raw json.RawMessage) (string, error) {
	if isNullOrEmpty(raw) {
		return "", errors.New("null")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func requireExactFields(raw map[string]json.RawMessage, fields []string) error {
	var missing, unknown []string
	for _, f := range fields {
		if _, ok := raw[f]; !ok {
			missing = append(missing, f)
		}
	}
	allowed := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		allowed[f] = struct{}{}
	}
	for k := range raw {
		if _, ok := allowed[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("missing fields [%s], unknown fields [%s]", strings.Join(missing, ","), strings.Join(unknown, ","))
}

func isNullOrEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrCorruptPayload, fmt.Sprintf(format, args...))
}
