// validate.go — проверка полей отчёта и слияние патча при одобрении.
package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
)

// validateCreate проверяет данные нового отчёта и возвращает нормализованные поля.
func validateCreate(in CreateInput) (model.ReportFields, error) {
	if in.CreatorID <= 0 {
		return model.ReportFields{}, fmt.Errorf("%w: не указан автор отчёта", ErrInvalidPayload)
	}
	return createFields(in)
}

// CheckCreateInput проверяет поля нового отчёта без учёта автора.
// Вызывается до записи актора и загрузки файлов.
func CheckCreateInput(in CreateInput) error {
	_, err := createFields(in)
	return err
}

func createFields(in CreateInput) (model.ReportFields, error) {
	if !in.Quantity.Valid {
		return model.ReportFields{}, fmt.Errorf("%w: поле quantity обязательно", ErrInvalidPayload)
	}
	return validateFields(model.ReportFields{
		Name:          in.Name,
		Description:   in.Description,
		Quantity:      in.Quantity.Decimal,
		Unit:          in.Unit,
		Price:         in.Price,
		PickupAddress: in.PickupAddress,
		ShelfLife:     in.ShelfLife,
	})
}

// validateFields проверяет редактируемые поля. Строки обрезаются,
// пустое описание становится NULL.
func validateFields(f model.ReportFields) (model.ReportFields, error) {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return f, fmt.Errorf("%w: поле name обязательно", ErrInvalidPayload)
	}

	if !f.Unit.IsValid() {
		return f, fmt.Errorf("%w: недопустимая единица измерения %q", ErrInvalidPayload, f.Unit)
	}

	if !f.Quantity.IsPositive() {
		return f, fmt.Errorf("%w: quantity должно быть больше 0", ErrInvalidPayload)
	}

	f.PickupAddress = strings.TrimSpace(f.PickupAddress)
	if f.PickupAddress == "" {
		return f, fmt.Errorf("%w: поле pickup_address обязательно", ErrInvalidPayload)
	}

	f.ShelfLife = strings.TrimSpace(f.ShelfLife)
	if f.ShelfLife == "" {
		return f, fmt.Errorf("%w: поле shelf_life обязательно", ErrInvalidPayload)
	}
	if _, err := time.Parse(model.ShelfLifeLayout, f.ShelfLife); err != nil {
		return f, fmt.Errorf("%w: shelf_life должно быть в формате YYYY-MM-DD", ErrInvalidPayload)
	}

	if f.Price.Valid && f.Price.Decimal.IsNegative() {
		return f, fmt.Errorf("%w: price не может быть отрицательной", ErrInvalidPayload)
	}

	if f.Description != nil {
		d := strings.TrimSpace(*f.Description)
		if d == "" {
			f.Description = nil
		} else {
			f.Description = &d
		}
	}

	return f, nil
}

// mergePatch применяет патч к текущим полям.
// Отсутствующее поле сохраняет текущее значение, явный null очищает
// необязательные поля и запрещён для обязательных.
func mergePatch(cur model.ReportFields, p model.ReportPatch) (model.ReportFields, error) {
	out := cur

	required := []struct {
		field string
		null  bool
	}{
		{"name", p.Name.IsNull()},
		{"quantity", p.Quantity.IsNull()},
		{"unit", p.Unit.IsNull()},
		{"pickup_address", p.PickupAddress.IsNull()},
		{"shelf_life", p.ShelfLife.IsNull()},
	}
	for _, r := range required {
		if r.null {
			return out, fmt.Errorf("%w: %s не может быть null", ErrInvalidPayload, r.field)
		}
	}

	if p.Name.HasValue() {
		out.Name = p.Name.Value
	}
	if p.Quantity.HasValue() {
		out.Quantity = p.Quantity.Value
	}
	if p.Unit.HasValue() {
		out.Unit = p.Unit.Value
	}
	if p.PickupAddress.HasValue() {
		out.PickupAddress = p.PickupAddress.Value
	}
	if p.ShelfLife.HasValue() {
		out.ShelfLife = p.ShelfLife.Value
	}

	switch {
	case p.Description.IsNull():
		out.Description = nil
	case p.Description.HasValue():
		d := p.Description.Value
		out.Description = &d
	}

	switch {
	case p.Price.IsNull():
		out.Price = decimal.NullDecimal{}
	case p.Price.HasValue():
		out.Price = decimal.NewNullDecimal(p.Price.Value)
	}

	return validateFields(out)
}
