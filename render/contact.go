package render

import (
	"io"
	"strings"

	"github.com/emersion/go-vcard"

	"github.com/dhcgn/archive-extract/model"
)

// Contact writes c as a vCard 3.0. Optional properties are only emitted
// when the contact carries a value for them. Property order is the
// encoder's: VERSION first, then the rest sorted by name.
func Contact(w io.Writer, c model.Contact) error {
	card := make(vcard.Card)
	card.SetValue(vcard.FieldVersion, "3.0")

	fn := strings.TrimSpace(c.DisplayName)
	if fn == "" {
		fn = strings.TrimSpace(c.GivenName + " " + c.Surname)
	}
	if fn == "" {
		fn = c.Email
	}
	card.SetValue(vcard.FieldFormattedName, fn)
	card.SetName(&vcard.Name{
		FamilyName: c.Surname,
		GivenName:  c.GivenName,
	})

	if c.Email != "" {
		card.AddValue(vcard.FieldEmail, c.Email)
	}
	if c.WorkPhone != "" {
		card.Add(vcard.FieldTelephone, &vcard.Field{
			Value:  c.WorkPhone,
			Params: vcard.Params{vcard.ParamType: {vcard.TypeWork}},
		})
	}
	if c.HomePhone != "" {
		card.Add(vcard.FieldTelephone, &vcard.Field{
			Value:  c.HomePhone,
			Params: vcard.Params{vcard.ParamType: {vcard.TypeHome}},
		})
	}
	if c.Company != "" {
		card.SetValue(vcard.FieldOrganization, c.Company)
	}

	return vcard.NewEncoder(w).Encode(card)
}
