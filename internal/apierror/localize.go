package apierror

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	msgNetwork        = "The server could not be reached. Check your connection and try again."
	msgHTTP           = "The server rejected the request (HTTP %d)."
	msgGraphQL        = "The request failed: %s"
	msgValidation     = "The submitted data was not accepted: %s"
	msgValidationBare = "The submitted data was not accepted."
	msgUnknown        = "Something went wrong. Please try again."
)

var messages = func() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	set := func(tag language.Tag, key, msg string) {
		if err := b.SetString(tag, key, msg); err != nil {
			panic(err)
		}
	}
	for _, key := range []string{msgNetwork, msgHTTP, msgGraphQL, msgValidation, msgValidationBare, msgUnknown} {
		set(language.English, key, key)
	}
	set(language.Hungarian, msgNetwork, "A szerver nem érhető el. Ellenőrizze a kapcsolatot, és próbálja újra.")
	set(language.Hungarian, msgHTTP, "A szerver elutasította a kérést (HTTP %d).")
	set(language.Hungarian, msgGraphQL, "A kérés sikertelen: %s")
	set(language.Hungarian, msgValidation, "A megadott adatok nem elfogadhatók: %s")
	set(language.Hungarian, msgValidationBare, "A megadott adatok nem elfogadhatók.")
	set(language.Hungarian, msgUnknown, "Hiba történt. Kérjük, próbálja újra.")
	return b
}()

// Supported returns the languages messages are available in.
func Supported() []language.Tag {
	return messages.Languages()
}

// ParseLocale matches a BCP 47 locale against the supported languages,
// defaulting to English.
func ParseLocale(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	matched, _, _ := language.NewMatcher(Supported()).Match(tag)
	base, _ := matched.Base()
	return language.Make(base.String())
}

// Localize renders err as a user-facing message. Raw server text is only
// shown for GraphQL and validation errors, where the server addresses the
// user directly.
func Localize(tag language.Tag, err error) string {
	if err == nil {
		return ""
	}
	p := message.NewPrinter(tag, message.Catalog(messages))
	classified := Classify(err)
	switch classified.Kind {
	case NetworkUnavailable:
		return p.Sprintf(msgNetwork)
	case HTTPError:
		return p.Sprintf(msgHTTP, classified.Status.Default(0))
	case GraphQLError:
		return p.Sprintf(msgGraphQL, classified.Message)
	case ValidationFailure:
		if len(classified.Details) == 0 {
			return p.Sprintf(msgValidationBare)
		}
		return p.Sprintf(msgValidation, strings.Join(classified.Details, "; "))
	case Unknown:
	}
	return p.Sprintf(msgUnknown)
}
