package indexer

import (
	"github.com/starford/notedex/internal/index"
	"github.com/starford/notedex/internal/parser"
	"github.com/starford/notedex/internal/storage"
)

// Document parses the note stored at the vault-relative path rel into the
// form the index stores.
func Document(rel string, data []byte) (index.Document, error) {
	res, err := parser.ParseFile(rel, data)
	if err != nil {
		return index.Document{}, err
	}

	links := make([]index.Link, 0, len(res.Links))
	for _, l := range res.Links {
		links = append(links, index.Link{
			Raw:    l.Raw,
			Target: l.Target,
			Type:   l.Type,
			Line:   l.Line,
		})
	}
	return index.Document{
		Path:        index.NormalizePath(rel),
		Title:       res.Title,
		Content:     res.Body,
		Frontmatter: index.Frontmatter(res.Frontmatter),
		Tags:        index.StringList(res.Tags),
		Aliases:     index.StringList(res.Aliases),
		WordCount:   res.WordCount,
		Checksum:    storage.Checksum(data),
		Starred:     res.Starred,
		Template:    res.Template,
		Links:       links,
	}, nil
}
