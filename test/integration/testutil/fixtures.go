package testutil

import "cardoctor/pkg/model"

// SampleServices is a small catalog with distinct prices.
func SampleServices() []model.ServiceDocument {
	return []model.ServiceDocument{
		{"title": "Full Car Repair", "price": 200.0, "service_id": "01", "img": "repair.jpg", "description": "Bumper to bumper"},
		{"title": "Engine Oil Change", "price": 20.0, "service_id": "02", "img": "oil.jpg"},
		{"title": "Automatic Services", "price": 120.0, "service_id": "03", "img": "auto.jpg"},
		{"title": "Battery Charge", "price": 50.0, "service_id": "04", "img": "battery.jpg"},
	}
}

type BookingBuilder struct {
	booking model.Booking
}

func NewBookingBuilder() *BookingBuilder {
	return &BookingBuilder{
		booking: model.Booking{
			"customerName": "Test Customer",
			"email":        "customer@example.com",
			"date":         "2024-06-01",
			"service":      "Engine Oil Change",
			"service_id":   "02",
			"price":        20.0,
		},
	}
}

func (b *BookingBuilder) WithEmail(email string) *BookingBuilder {
	b.booking["email"] = email
	return b
}

func (b *BookingBuilder) WithStatus(status string) *BookingBuilder {
	b.booking["status"] = status
	return b
}

func (b *BookingBuilder) With(key string, value any) *BookingBuilder {
	b.booking[key] = value
	return b
}

func (b *BookingBuilder) Build() model.Booking {
	out := make(model.Booking, len(b.booking))
	for k, v := range b.booking {
		out[k] = v
	}
	return out
}
