package models

type Ticket struct {
	ID           uint64  `json:"id" cbor:"1,keyasint"`
	EventID      uint64  `json:"event_id" cbor:"2,keyasint"`
	Owner        Address `json:"owner" cbor:"3,keyasint"`
	PurchaseTime uint64  `json:"purchase_time" cbor:"4,keyasint"`
	Used         bool    `json:"used" cbor:"5,keyasint"`
	Refunded     bool    `json:"refunded" cbor:"6,keyasint"`
}
