// Package match resolves the extracted issuing party against the company's
// known supplier roster. Resolution is advisory: an empty result means "new
// supplier", never an error.
package match

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/craftbooks/invoice-ingest/internal/entity"
)

const (
	scoreVatID = 1.0
	scoreIBAN  = 0.9
	// name similarity is capped below the identifier signals so a lookalike
	// name can never outrank an exact VAT or IBAN hit
	maxNameScore = 0.8
)

// SupplierSource lists the roster in scope for one company.
type SupplierSource interface {
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]entity.Supplier, error)
}

type Config struct {
	// MinScore is the floor below which candidates are not reported.
	MinScore float64
}

type Resolver struct {
	suppliers SupplierSource
	cfg       Config
	log       *slog.Logger
}

func NewResolver(suppliers SupplierSource, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{suppliers: suppliers, cfg: cfg, log: logger}
}

// Resolve ranks the roster against the extracted supplier identity. Signals
// in descending strength: exact VAT-id equality, exact IBAN equality,
// normalized name similarity.
func (r *Resolver) Resolve(ctx context.Context, companyID uuid.UUID, candidate entity.SupplierInfo) ([]entity.SupplierMatch, error) {
	roster, err := r.suppliers.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	var matches []entity.SupplierMatch
	for i := range roster {
		s := &roster[i]
		score, reason := r.scoreSupplier(s, candidate)
		if score < r.cfg.MinScore {
			continue
		}
		matches = append(matches, entity.SupplierMatch{
			SupplierID:  s.ID,
			MatchScore:  score,
			MatchReason: reason,
			Supplier:    s,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})

	r.log.Debug("match.resolve.done",
		"company_id", companyID,
		"candidate", candidate.Name,
		"roster_size", len(roster),
		"matches", len(matches),
	)
	return matches, nil
}

func (r *Resolver) scoreSupplier(s *entity.Supplier, candidate entity.SupplierInfo) (float64, string) {
	if candidate.VatID != "" && s.VatID != "" && normalizeID(candidate.VatID) == normalizeID(s.VatID) {
		return scoreVatID, "vat_id"
	}
	if candidate.IBAN != "" && s.IBAN != "" && normalizeID(candidate.IBAN) == normalizeID(s.IBAN) {
		return scoreIBAN, "iban"
	}
	if candidate.Name == "" || candidate.Name == entity.UnknownSupplierName {
		return 0, ""
	}
	sim := nameSimilarity(candidate.Name, s.Name)
	return sim * maxNameScore, "name"
}

// nameSimilarity is 1 - normalized edit distance over legal-form-stripped,
// lowercased names.
func nameSimilarity(a, b string) float64 {
	na, nb := normalizeName(a), normalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	dist := levenshtein.ComputeDistance(na, nb)
	longer := max(len([]rune(na)), len([]rune(nb)))
	return 1 - float64(dist)/float64(longer)
}

var legalForms = []string{
	"gmbh & co. kg", "gmbh & co kg", "gmbh", "ag", "kg", "ohg", "ug",
	"e.k.", "ek", "ltd", "inc", "corp",
}

func normalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, form := range legalForms {
		n = strings.TrimSuffix(n, form)
	}
	n = strings.Trim(n, " .,-")
	return strings.Join(strings.Fields(n), " ")
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(id), " ", ""))
}
