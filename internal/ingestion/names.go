package ingestion

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultQueueNames maps raw queue labels, as exported by the telephony
// platform, to their dashboard display names
var defaultQueueNames = map[string]string{
	"credenciados":         "Credenciados",
	"fila_credenciados":    "Credenciados",
	"credenciamento":       "Credenciados",
	"sac":                  "SAC",
	"sac_geral":            "SAC",
	"atendimento_geral":    "SAC",
	"suporte":              "Suporte Técnico",
	"suporte_tecnico":      "Suporte Técnico",
	"suporte técnico":      "Suporte Técnico",
	"ouvidoria":            "Ouvidoria",
	"retencao":             "Retenção",
	"retenção":             "Retenção",
	"cobranca":             "Cobrança",
	"cobrança":             "Cobrança",
	"vendas":               "Vendas",
	"vendas_ativo":         "Vendas",
	"agendamento":          "Agendamento",
	"agendamento_consulta": "Agendamento",
}

// QueueNames resolves raw queue labels to canonical display names
type QueueNames struct {
	table map[string]string
}

// NewQueueNames builds a lookup table. Keys are matched case-insensitively.
func NewQueueNames(table map[string]string) *QueueNames {
	n := &QueueNames{table: make(map[string]string, len(table))}
	for raw, canonical := range table {
		n.table[strings.ToLower(strings.TrimSpace(raw))] = canonical
	}
	return n
}

// DefaultQueueNames returns the built-in table
func DefaultQueueNames() *QueueNames {
	return NewQueueNames(defaultQueueNames)
}

type queueNamesFile struct {
	Queues map[string]string `yaml:"queues"`
}

// LoadQueueNames reads a YAML file of the form
//
//	queues:
//	  fila_credenciados: Credenciados
//
// and layers it over the built-in table. An empty path returns the defaults.
func LoadQueueNames(path string) (*QueueNames, error) {
	if path == "" {
		return DefaultQueueNames(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queue names file: %w", err)
	}

	var file queueNamesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse queue names file %s: %w", path, err)
	}

	merged := make(map[string]string, len(defaultQueueNames)+len(file.Queues))
	for k, v := range defaultQueueNames {
		merged[k] = v
	}
	for k, v := range file.Queues {
		merged[k] = v
	}
	return NewQueueNames(merged), nil
}

// Canonical returns the display name for raw. Unknown labels pass through
// sanitized but with their original casing.
func (n *QueueNames) Canonical(raw string) string {
	sanitized := SanitizeString(raw)
	if sanitized == "" {
		return ""
	}
	if canonical, ok := n.table[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return canonical
	}
	return sanitized
}

// Len returns the number of entries in the table
func (n *QueueNames) Len() int {
	return len(n.table)
}
