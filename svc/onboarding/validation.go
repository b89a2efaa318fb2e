package onboarding

import (
	"mime/multipart"

	"github.com/dmitrymomot/prokit/pkg/file"
	"github.com/dmitrymomot/prokit/pkg/sanitizer"
	"github.com/dmitrymomot/prokit/pkg/validator"
)

// AgencyTypes are the accepted values of the agency "type" field.
var AgencyTypes = []string{"agence", "syndic", "notaire", "promoteur", "amenageur", "lotisseur"}

const (
	RolePatron = "patron"
	RoleJoiner = "agent"
)

const (
	phoneMinDigits = 10
	siretDigits    = 14
	zipMinLength   = 5
)

type ProfileInput struct {
	FirstName string `form:"first_name"`
	LastName  string `form:"last_name"`
	Phone     string `form:"phone"`
}

var trimText = sanitizer.Compose(sanitizer.Trim, sanitizer.NormalizeWhitespace)

func (in ProfileInput) normalize() ProfileInput {
	return ProfileInput{
		FirstName: trimText(in.FirstName),
		LastName:  trimText(in.LastName),
		Phone:     sanitizer.Trim(in.Phone),
	}
}

func (in ProfileInput) validate() error {
	return validator.Apply(
		message(validator.RequiredString("first_name", in.FirstName), "Le prénom est requis"),
		message(validator.RequiredString("last_name", in.LastName), "Le nom est requis"),
		validator.When(in.Phone != "",
			message(validator.MinDigits("phone", in.Phone, phoneMinDigits), "Le numéro de téléphone doit contenir au moins 10 chiffres")),
	)
}

type AgencyInput struct {
	Name          string `form:"name"`
	LegalName     string `form:"legal_name"`
	Type          string `form:"type"`
	SIRET         string `form:"siret"`
	VATNumber     string `form:"vat_number"`
	Email         string `form:"email"`
	Phone         string `form:"phone"`
	Website       string `form:"website"`
	StreetAddress string `form:"street_address"`
	City          string `form:"city"`
	ZipCode       string `form:"zip_code"`
}

func (in AgencyInput) normalize() AgencyInput {
	return AgencyInput{
		Name:          trimText(in.Name),
		LegalName:     trimText(in.LegalName),
		Type:          sanitizer.Apply(in.Type, sanitizer.Trim, sanitizer.ToLower),
		SIRET:         sanitizer.RemoveWhitespace(in.SIRET),
		VATNumber:     sanitizer.Apply(in.VATNumber, sanitizer.RemoveWhitespace, sanitizer.ToUpper),
		Email:         sanitizer.NormalizeEmail(in.Email),
		Phone:         sanitizer.Trim(in.Phone),
		Website:       sanitizer.Trim(in.Website),
		StreetAddress: trimText(in.StreetAddress),
		City:          trimText(in.City),
		ZipCode:       sanitizer.Trim(in.ZipCode),
	}
}

func (in AgencyInput) validate(requireVAT bool) error {
	return validator.Apply(
		message(validator.RequiredString("name", in.Name), "Le nom de l'agence est requis"),
		message(validator.InList("type", in.Type, AgencyTypes), "Type d'agence invalide"),
		message(validator.ExactDigits("siret", in.SIRET, siretDigits), "Le SIRET doit contenir exactement 14 chiffres"),
		validator.When(requireVAT,
			message(validator.RequiredString("vat_number", in.VATNumber), "Le numéro de TVA est requis")),
		validator.When(in.ZipCode != "",
			message(validator.MinLenString("zip_code", in.ZipCode, zipMinLength), "Le code postal doit contenir au moins 5 caractères")),
	)
}

func (in AgencyInput) fields() AgencyFields {
	return AgencyFields(in)
}

type ShowcaseInput struct {
	Description string                `form:"description"`
	Logo        *multipart.FileHeader `file:"logo"`
	Banner      *multipart.FileHeader `file:"banner"`
}

func (in ShowcaseInput) normalize() ShowcaseInput {
	in.Description = sanitizer.Trim(in.Description)
	return in
}

// validate checks the text fields and any new uploads. hasLogo reports an
// already stored logo, which satisfies the logo requirement.
func (in ShowcaseInput) validate(hasLogo bool, maxBytes int64) error {
	rules := []validator.Rule{
		message(validator.RequiredString("description", in.Description), "La description est requise"),
		{
			Check: func() bool { return in.Logo != nil || hasLogo },
			Error: validator.ValidationError{Field: "logo", Message: "Le logo est requis", TranslationKey: "validation.required"},
		},
	}
	rules = append(rules, uploadRules("logo", in.Logo, maxBytes)...)
	rules = append(rules, uploadRules("banner", in.Banner, maxBytes)...)
	return validator.Apply(rules...)
}

func uploadRules(field string, fh *multipart.FileHeader, maxBytes int64) []validator.Rule {
	if fh == nil {
		return nil
	}
	return []validator.Rule{
		{
			Check: func() bool { return file.IsImage(fh) },
			Error: validator.ValidationError{Field: field, Message: "Seules les images sont acceptées", TranslationKey: "validation.image"},
		},
		{
			Check: func() bool { return file.ValidateSize(fh, maxBytes) == nil },
			Error: validator.ValidationError{Field: field, Message: "Le fichier est trop volumineux", TranslationKey: "validation.file_size"},
		},
	}
}

func validateRole(role string) error {
	return validator.Apply(
		message(validator.InList("role", role, []string{RolePatron, RoleJoiner}), "Choix invalide"),
	)
}

func validateInviteCode(code string) error {
	return validator.Apply(
		message(validator.MinLenString("invite_code", code, MinInviteCodeLength), "Code d'invitation invalide"),
	)
}

func message(r validator.Rule, msg string) validator.Rule {
	r.Error.Message = msg
	return r
}
