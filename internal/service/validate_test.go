package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
)

func TestValidateCreate_Normalizes(t *testing.T) {
	desc := "  "
	in := validInput()
	in.Name = "  Bread  "
	in.PickupAddress = " Via Roma 1 "
	in.Description = &desc

	f, err := validateCreate(in)
	if err != nil {
		t.Fatalf("validateCreate() ошибка: %v", err)
	}
	if f.Name != "Bread" || f.PickupAddress != "Via Roma 1" {
		t.Errorf("строки не обрезаны: %q, %q", f.Name, f.PickupAddress)
	}
	if f.Description != nil {
		t.Errorf("пустое описание должно стать nil, получено %q", *f.Description)
	}
	if f.Price.Valid {
		t.Error("цена не передана, Price.Valid должно быть false")
	}
}

func TestValidateCreate_ZeroPriceAllowed(t *testing.T) {
	in := validInput()
	in.Price = decimal.NewNullDecimal(decimal.Zero)
	if _, err := validateCreate(in); err != nil {
		t.Errorf("нулевая цена допустима, получено %v", err)
	}
}

func TestCheckCreateInput(t *testing.T) {
	in := validInput()
	in.CreatorID = 0
	if err := CheckCreateInput(in); err != nil {
		t.Errorf("автор не проверяется до записи актора, получено %v", err)
	}

	in.Quantity = decimal.NullDecimal{}
	if err := CheckCreateInput(in); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("без quantity: %v, ожидалась ErrInvalidPayload", err)
	}

	in = validInput()
	in.ShelfLife = "10.01.2025"
	if err := CheckCreateInput(in); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("неверная дата: %v, ожидалась ErrInvalidPayload", err)
	}
}

func TestMergePatch(t *testing.T) {
	desc := "fresh"
	cur := model.ReportFields{
		Name:          "Milk",
		Description:   &desc,
		Quantity:      decimal.NewFromInt(2),
		Unit:          model.UnitLitre,
		Price:         decimal.NewNullDecimal(decimal.NewFromInt(3)),
		PickupAddress: "Main st 5",
		ShelfLife:     "2025-02-01",
	}

	t.Run("пустой патч", func(t *testing.T) {
		got, err := mergePatch(cur, model.ReportPatch{})
		if err != nil {
			t.Fatalf("ошибка: %v", err)
		}
		if got.Name != cur.Name || *got.Description != desc || !got.Price.Decimal.Equal(cur.Price.Decimal) {
			t.Errorf("пустой патч изменил поля: %+v", got)
		}
	})

	t.Run("null очищает необязательные поля", func(t *testing.T) {
		got, err := mergePatch(cur, model.ReportPatch{
			Description: model.Null[string](),
			Price:       model.Null[decimal.Decimal](),
		})
		if err != nil {
			t.Fatalf("ошибка: %v", err)
		}
		if got.Description != nil || got.Price.Valid {
			t.Errorf("Description=%v Price=%v, ожидались пустые", got.Description, got.Price)
		}
	})

	t.Run("значения заменяют поля", func(t *testing.T) {
		got, err := mergePatch(cur, model.ReportPatch{
			Unit:      model.Some(model.UnitMillilitre),
			Quantity:  model.Some(decimal.NewFromInt(500)),
			ShelfLife: model.Some("2025-03-01"),
		})
		if err != nil {
			t.Fatalf("ошибка: %v", err)
		}
		if got.Unit != model.UnitMillilitre || !got.Quantity.Equal(decimal.NewFromInt(500)) || got.ShelfLife != "2025-03-01" {
			t.Errorf("патч не применён: %+v", got)
		}
	})

	errCases := []struct {
		name  string
		patch model.ReportPatch
	}{
		{"null name", model.ReportPatch{Name: model.Null[string]()}},
		{"null quantity", model.ReportPatch{Quantity: model.Null[decimal.Decimal]()}},
		{"null unit", model.ReportPatch{Unit: model.Null[model.Unit]()}},
		{"null pickup_address", model.ReportPatch{PickupAddress: model.Null[string]()}},
		{"null shelf_life", model.ReportPatch{ShelfLife: model.Null[string]()}},
		{"пустое имя", model.ReportPatch{Name: model.Some(" ")}},
		{"неизвестная единица", model.ReportPatch{Unit: model.Some(model.Unit("bag"))}},
		{"неверная дата", model.ReportPatch{ShelfLife: model.Some("2025-13-01")}},
		{"отрицательная цена", model.ReportPatch{Price: model.Some(decimal.NewFromInt(-5))}},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := mergePatch(cur, tc.patch); !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("ожидалась ErrInvalidPayload, получено %v", err)
			}
		})
	}
}
