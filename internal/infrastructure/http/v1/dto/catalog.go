package dto

import (
	"salesflow/internal/core/types"
	"salesflow/internal/domain/catalogs/customer"
	"salesflow/internal/domain/catalogs/item"
)

// ItemRequest creates or updates an item.
type ItemRequest struct {
	Code         string            `json:"code" binding:"max=50"`
	Name         string            `json:"name" binding:"required,max=200"`
	TrackingType item.TrackingType `json:"trackingType" binding:"omitempty,oneof=regular batch serial"`
	Unit         string            `json:"unit" binding:"max=20"`
	MRP          *types.Money      `json:"mrp"`
	MSP          *types.Money      `json:"msp"`
	Version      int               `json:"version" binding:"min=0"`
}

// ToEntity builds a new item.
func (r ItemRequest) ToEntity() *item.Item {
	it := item.NewItem(r.Code, r.Name)
	r.Apply(it)
	return it
}

// Apply copies the request onto an existing item.
func (r ItemRequest) Apply(it *item.Item) {
	if r.Code != "" {
		it.Code = r.Code
	}
	it.Name = r.Name
	if r.TrackingType != "" {
		it.TrackingType = r.TrackingType
	}
	if r.Unit != "" {
		it.Unit = r.Unit
	}
	it.MRP = r.MRP
	it.MSP = r.MSP
	if r.Version > 0 {
		it.Version = r.Version
	}
}

// CustomerRequest creates or updates a customer.
type CustomerRequest struct {
	Code               string       `json:"code" binding:"max=50"`
	Name               string       `json:"name" binding:"required,max=200"`
	Email              *string      `json:"email" binding:"omitempty,email"`
	Phone              *string      `json:"phone" binding:"omitempty,max=50"`
	CreditLimit        *types.Money `json:"creditLimit"`
	CreditLimitEnabled bool         `json:"creditLimitEnabled"`
	Version            int          `json:"version" binding:"min=0"`
}

// ToEntity builds a new customer.
func (r CustomerRequest) ToEntity() *customer.Customer {
	c := customer.NewCustomer(r.Code, r.Name)
	r.Apply(c)
	return c
}

// Apply copies the request onto an existing customer.
func (r CustomerRequest) Apply(c *customer.Customer) {
	if r.Code != "" {
		c.Code = r.Code
	}
	c.Name = r.Name
	c.Email = r.Email
	c.Phone = r.Phone
	c.CreditLimit = r.CreditLimit
	c.CreditLimitEnabled = r.CreditLimitEnabled
	if r.Version > 0 {
		c.Version = r.Version
	}
}
