package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/biter777/countries"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/ttacon/libphonenumber"
)

type Flavour int

const (
	Hub2Mailjet Flavour = iota
)

func (f Flavour) String() string {
	switch f {
	case Hub2Mailjet:
		return "hub2mailjet"
	default:
		return fmt.Sprintf("flavour(%d)", int(f))
	}
}

// initialisedFlavour stores the flavour set by Init.
// A nil value means Init has not been called.
var initialisedFlavour *Flavour

// mustBeInitialised panics if Init has not been called.
// This should be called at the entry points of the library
// to catch programming errors early.
func mustBeInitialised() Flavour {
	if initialisedFlavour == nil {
		panic("sync: Init() must be called before using this package")
	}
	return *initialisedFlavour
}

// GetInitialisedFlavour returns the flavour set by Init.
// Panics if Init has not been called.
func GetInitialisedFlavour() Flavour {
	return mustBeInitialised()
}

func Init(flavour Flavour) {

	f := flavour
	initialisedFlavour = &f

	// Validate no duplicate webservice ids across env vars
	validateNoDuplicateWebserviceIDs()

	// Validate env var names match org prefix from MAPPING_PATH
	validateEnvVarOrgPrefix()

	if flavour == Hub2Mailjet {

		gjson.AddModifier("contains", func(json, arg string) string {
			res := gjson.Parse(json)
			if res.IsArray() {
				values := res.Array()
				for _, v := range values {
					if strings.Contains(v.String(), arg) {
						return fmt.Sprintf("%t", true)
					}
				}
				return fmt.Sprintf("%t", false)
			}
			return fmt.Sprintf("%t", strings.Contains(res.String(), arg))
		})

		// phone formats a number as E.164, arg is the default country calling code (e.g. 44)
		gjson.AddModifier("phone", func(json, arg string) string {
			number := strings.TrimSpace(gjson.Parse(json).String())
			if number == "" {
				return ""
			}
			region := "ZZ"
			if i, err := strconv.Atoi(arg); err == nil {
				region = libphonenumber.GetRegionCodeForCountryCode(i)
			}
			num, err := libphonenumber.Parse(number, region)
			if err != nil {
				log.Warn().Err(err).Str("number", number).Str("country_code", arg).Msg("failed to parse phone number, using it unchanged")
				return strconv.Quote(number)
			}
			return strconv.Quote(libphonenumber.Format(num, libphonenumber.E164))
		})

		gjson.AddModifier("countryName", func(json, arg string) string {
			s := gjson.Parse(json).String()
			c := countries.ByName(s) // will match on Alpha-2 / Alpha-3 / Name
			if countries.Unknown == c {
				return ""
			}
			return strconv.Quote(c.String()) // returns Country Name
		})

		gjson.AddModifier("countryCode", func(json, arg string) string {
			s := gjson.Parse(json).String()
			c := countries.ByName(s)
			if countries.Unknown == c {
				return ""
			}
			return strconv.Quote(c.Alpha2())
		})

		gjson.AddModifier("now", func(json, arg string) string {
			return strconv.Quote(time.Now().UTC().Format(time.RFC3339))
		})

		gjson.AddModifier("gte", func(json, arg string) string {
			res := gjson.Parse(json)
			if !res.Exists() || arg == "" {
				return ""
			}
			f, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return ""
			}
			return fmt.Sprintf("%t", res.Float() >= f)
		})

	}

}

// validateEnvVarOrgPrefix scans all environment variables for JSON values
// containing a MAPPING_PATH and validates that the env var name starts with
// the org prefix from the path (the portion before the "/").
func validateEnvVarOrgPrefix() {
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}

		var m map[string]string
		// Most env vars are plain strings (e.g. PATH), not JSON, skip those silently
		if err := json.Unmarshal([]byte(value), &m); err != nil {
			continue
		}

		mappingPath, ok := m["MAPPING_PATH"]
		if !ok {
			continue
		}

		index := strings.Index(mappingPath, "/")
		if index == -1 {
			log.Fatal().Msgf("MAPPING_PATH %q in env var %q must contain org directory (e.g. ORG/LABEL)", mappingPath, name)
		}

		org := mappingPath[:index]
		if !strings.HasPrefix(name, org+"_") {
			log.Fatal().Msgf("env var name %q must start with org prefix %q (from MAPPING_PATH %q)", name, org+"_", mappingPath)
		}
	}
}

// validateNoDuplicateWebserviceIDs scans all environment variables for JSON values
// containing the connector key for the initialised flavour
// and fatals if any webservice id appears in more than one env var.
func validateNoDuplicateWebserviceIDs() {
	connectorKey, err := connectorKeyForFlavour(GetInitialisedFlavour())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to validate webservice ids")
	}

	// map of webservice id -> env var name
	seen := make(map[string]string)

	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}

		var m map[string]string
		if err := json.Unmarshal([]byte(value), &m); err != nil {
			continue
		}

		id, ok := m[connectorKey]
		if !ok {
			continue
		}

		if existing, found := seen[id]; found {
			log.Fatal().Msgf("duplicate %s %q found in env vars %q and %q", connectorKey, id, existing, name)
		}
		seen[id] = name
	}
}
