package search

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/mkerr/briefcast/internal/bulletin"
)

// Hit is one bulletin history record matched by a query.
type Hit struct {
	BulletinID string  `json:"bulletin_id"`
	ProfileID  string  `json:"profile_id"`
	Score      float64 `json:"score"`
}

// Index maintains a Bleve full-text index over bulletin history records so
// past runs can be found by profile, source name, or date.
type Index struct {
	idx bleve.Index
}

// NewIndex creates or opens a Bleve index at indexPath.
func NewIndex(indexPath string) (*Index, error) {
	// Open/Create below surfaces the real failure if this did not work.
	_ = os.MkdirAll(filepath.Dir(indexPath), 0o755)

	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, err
		}
	}

	return &Index{idx: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	profile := bleve.NewTextFieldMapping()
	profile.Analyzer = standard.Name
	profile.Store = true

	sources := bleve.NewTextFieldMapping()
	sources.Analyzer = standard.Name
	sources.Store = true

	date := bleve.NewTextFieldMapping()
	date.Analyzer = standard.Name
	date.Store = true

	dm.AddFieldMappingsAt("profile", profile)
	dm.AddFieldMappingsAt("sources", sources)
	dm.AddFieldMappingsAt("failed_sources", sources)
	dm.AddFieldMappingsAt("date", date)

	im.DefaultMapping = dm
	return im
}

// IndexBulletin adds or replaces one bulletin record in the index.
func (i *Index) IndexBulletin(result *bulletin.Result) error {
	failed := make([]string, 0, len(result.SourcesFailed))
	for _, f := range result.SourcesFailed {
		failed = append(failed, f.Name)
	}

	return i.idx.Index(result.ID, map[string]any{
		"profile":        result.ProfileID,
		"sources":        strings.Join(result.SourcesSucceeded, " "),
		"failed_sources": strings.Join(failed, " "),
		"date":           result.GeneratedAt.Format("2006-01-02"),
	})
}

// Search matches query terms against profile, source names, and date.
func (i *Index) Search(query string, limit int) ([]*Hit, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return []*Hit{}, nil
	}

	var qs []bleveQuery.Query
	for _, tok := range strings.Fields(query) {
		qp := bleve.NewMatchQuery(tok)
		qp.SetField("profile")
		qp.SetBoost(2.0)
		qs = append(qs, qp)

		qsrc := bleve.NewMatchQuery(tok)
		qsrc.SetField("sources")
		qsrc.SetBoost(1.5)
		qs = append(qs, qsrc)

		qpre := bleve.NewPrefixQuery(strings.ToLower(tok))
		qpre.SetField("sources")
		qs = append(qs, qpre)

		qd := bleve.NewMatchQuery(tok)
		qd.SetField("date")
		qs = append(qs, qd)
	}

	q := bleve.NewDisjunctionQuery(qs...)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"profile"}

	res, err := i.idx.Search(req)
	if err != nil {
		return nil, err
	}

	hits := make([]*Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := &Hit{BulletinID: h.ID, Score: h.Score}
		if p, ok := h.Fields["profile"].(string); ok {
			hit.ProfileID = p
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DocCount reports the number of indexed bulletins.
func (i *Index) DocCount() (uint64, error) {
	return i.idx.DocCount()
}

func (i *Index) Close() error {
	return i.idx.Close()
}
