package aggregator

import (
	"strings"
	"unicode"

	"github.com/dennisdiepolder/monti/callreport/internal/types"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stateRegions = map[string]string{
	"AC": "Norte", "AP": "Norte", "AM": "Norte", "PA": "Norte", "RO": "Norte", "RR": "Norte", "TO": "Norte",
	"AL": "Nordeste", "BA": "Nordeste", "CE": "Nordeste", "MA": "Nordeste", "PB": "Nordeste",
	"PE": "Nordeste", "PI": "Nordeste", "RN": "Nordeste", "SE": "Nordeste",
	"DF": "Centro-Oeste", "GO": "Centro-Oeste", "MT": "Centro-Oeste", "MS": "Centro-Oeste",
	"ES": "Sudeste", "MG": "Sudeste", "RJ": "Sudeste", "SP": "Sudeste",
	"PR": "Sul", "RS": "Sul", "SC": "Sul",
}

// stateNames maps accent-folded, upper-cased state names to their code
var stateNames = map[string]string{
	"ACRE": "AC", "AMAPA": "AP", "AMAZONAS": "AM", "PARA": "PA", "RONDONIA": "RO", "RORAIMA": "RR",
	"TOCANTINS": "TO", "ALAGOAS": "AL", "BAHIA": "BA", "CEARA": "CE", "MARANHAO": "MA",
	"PARAIBA": "PB", "PERNAMBUCO": "PE", "PIAUI": "PI", "RIO GRANDE DO NORTE": "RN",
	"SERGIPE": "SE", "DISTRITO FEDERAL": "DF", "GOIAS": "GO", "MATO GROSSO": "MT",
	"MATO GROSSO DO SUL": "MS", "ESPIRITO SANTO": "ES", "MINAS GERAIS": "MG",
	"RIO DE JANEIRO": "RJ", "SAO PAULO": "SP", "PARANA": "PR", "RIO GRANDE DO SUL": "RS",
	"SANTA CATARINA": "SC",
}

// RegionOf returns the region of a state given as code or full name, or
// UnknownRegion when the state is not in the table
func RegionOf(state string) string {
	key := foldState(state)
	if code, ok := stateNames[key]; ok {
		key = code
	}
	if region, ok := stateRegions[key]; ok {
		return region
	}
	return types.UnknownRegion
}

func foldState(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToUpper(folded)), " ")
}
