// Package paging turns ?page=N query values into gorm offsets.
package paging

import (
	"math"

	"gorm.io/gorm"
)

type Page struct {
	Number int
	Size   int
}

// New clamps number to 1 and size to def when they are not positive. Number
// is capped so that Number*Size cannot overflow.
func New(number, size, def int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = def
	}
	if size < 1 {
		size = 1
	}
	if maxNumber := math.MaxInt / size; number > maxNumber {
		number = maxNumber
	}
	return Page{Number: number, Size: size}
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Scope applies LIMIT/OFFSET to a query.
func (p Page) Scope() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.Size)
	}
}

func (p Page) HasPrev() bool {
	return p.Number > 1
}

func (p Page) HasNext(total int64) bool {
	return int64(p.Number*p.Size) < total
}
