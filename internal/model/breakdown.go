package model

import "strings"

// Breakdown содержит строки итогов счёта в том виде, в каком их видит клиент.
type Breakdown struct {
	Items              []LineItem
	SubtotalCents      int64
	TaxCents           int64
	HasTax             bool
	TaxLabel           string
	LateFeeCents       int64
	HasLateFee         bool
	LateFeeLabel       string
	OriginalTotalCents int64
	TotalCents         int64
	AmountDueCents     int64
	AmountDueDisplay   string
}

// IsTaxItem сообщает, что строка счёта является налогом.
func IsTaxItem(li LineItem) bool {
	return strings.Contains(strings.ToLower(li.Description), "tax")
}

// IsLateFeeItem сообщает, что строка счёта является пеней за просрочку.
func IsLateFeeItem(li LineItem) bool {
	return strings.Contains(strings.ToLower(li.Description), "late fee")
}

// Breakdown раскладывает строки счёта на подытог, налог и пеню.
// Строки налога и пени выводятся отдельно и не входят в подытог.
// Для оплаченного счёта сумма к оплате всегда равна нулю.
func (i *Invoice) Breakdown() Breakdown {
	b := Breakdown{}

	for _, li := range i.LineItems {
		switch {
		case IsLateFeeItem(li):
			b.HasLateFee = true
			b.LateFeeCents += li.AmountCents
			b.LateFeeLabel = li.Description
		case IsTaxItem(li):
			b.HasTax = true
			b.TaxCents += li.AmountCents
			b.TaxLabel = li.Description
		default:
			b.Items = append(b.Items, li)
			b.SubtotalCents += li.AmountCents
		}
	}

	if len(i.LineItems) == 0 {
		b.SubtotalCents = i.AmountCents
	}

	if !b.HasTax && i.TaxAmountCents > 0 {
		b.HasTax = true
		b.TaxCents = i.TaxAmountCents
		b.TaxLabel = "Tax"
	}

	b.OriginalTotalCents = b.SubtotalCents + b.TaxCents
	b.TotalCents = b.OriginalTotalCents + b.LateFeeCents

	if i.Status == InvoiceStatusPaid {
		b.AmountDueCents = 0
	} else {
		b.AmountDueCents = b.TotalCents
	}
	b.AmountDueDisplay = FormatUSD(b.AmountDueCents)

	return b
}

// AmountDueCents возвращает сумму к оплате с учётом статуса счёта.
func (i *Invoice) AmountDueCents() int64 {
	return i.Breakdown().AmountDueCents
}
