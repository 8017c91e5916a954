package model

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Optional — значение поля патча с тремя состояниями:
// отсутствует (Set == false), явный null (Set && Null), значение.
// При декодировании JSON UnmarshalJSON вызывается только для
// присутствующих ключей, поэтому отсутствие поля сохраняется.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some создаёт Optional с явным значением.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null создаёт Optional с явным null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// HasValue сообщает, что поле передано и не равно null.
func (o Optional[T]) HasValue() bool {
	return o.Set && !o.Null
}

// IsNull сообщает, что поле передано как явный null.
func (o Optional[T]) IsNull() bool {
	return o.Set && o.Null
}

// UnmarshalJSON реализует json.Unmarshaler.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// MarshalJSON реализует json.Marshaler. Отсутствующее поле сериализуется как null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.HasValue() {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// ReportPatch — патч редактируемых полей, применяемый при одобрении отчёта.
type ReportPatch struct {
	Name          Optional[string]          `json:"name"`
	Description   Optional[string]          `json:"description"`
	Quantity      Optional[decimal.Decimal] `json:"quantity"`
	Unit          Optional[Unit]            `json:"unit"`
	Price         Optional[decimal.Decimal] `json:"price"`
	PickupAddress Optional[string]          `json:"pickup_address"`
	ShelfLife     Optional[string]          `json:"shelf_life"`
}
