package itemledger

import (
	"github.com/shopspring/decimal"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/types"
)

var hundred = decimal.NewFromInt(100)

// Amounts holds the monetary breakdown of a line.
type Amounts struct {
	Gross          types.Money
	DiscountAmount types.Money
	TaxAmount      types.Money
	Total          types.Money
}

// ComputeAmounts prices a line:
//
//	gross    = quantity * unit_price
//	discount = gross * discount% | fixed discount
//	tax      = (gross - discount) * tax_rate%
//	total    = gross - discount + tax + charge
//
// Every amount is rounded to 2 fractional digits.
func ComputeAmounts(in LineInput) (Amounts, error) {
	if in.UnitPrice.IsNegative() {
		return Amounts{}, apperror.NewValidation("unit price cannot be negative").
			WithDetail("field", "unitPrice")
	}
	if in.Discount.IsNegative() {
		return Amounts{}, apperror.NewValidation("discount cannot be negative").
			WithDetail("field", "discount")
	}
	if in.TaxRate.IsNegative() {
		return Amounts{}, apperror.NewValidation("tax rate cannot be negative").
			WithDetail("field", "taxRate")
	}
	if in.ChargeAmount.IsNegative() {
		return Amounts{}, apperror.NewValidation("charge amount cannot be negative").
			WithDetail("field", "chargeAmount")
	}

	gross := types.RoundMoney(in.Quantity.Decimal().Mul(in.UnitPrice))

	var discount types.Money
	switch in.DiscountType {
	case DiscountPercentage, "":
		if in.Discount.GreaterThan(hundred) {
			return Amounts{}, apperror.NewValidation("discount percentage cannot exceed 100").
				WithDetail("field", "discount")
		}
		discount = types.RoundMoney(gross.Mul(in.Discount).Div(hundred))
	case DiscountFixed:
		discount = types.RoundMoney(in.Discount)
		if discount.GreaterThan(gross) {
			return Amounts{}, apperror.NewValidation("discount cannot exceed line amount").
				WithDetail("field", "discount")
		}
	default:
		return Amounts{}, apperror.NewValidation("invalid discount type").
			WithDetail("field", "discountType").
			WithDetail("value", string(in.DiscountType))
	}

	taxable := gross.Sub(discount)
	tax := types.RoundMoney(taxable.Mul(in.TaxRate).Div(hundred))

	return Amounts{
		Gross:          gross,
		DiscountAmount: discount,
		TaxAmount:      tax,
		Total:          taxable.Add(tax).Add(types.RoundMoney(in.ChargeAmount)),
	}, nil
}
