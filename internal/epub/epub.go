// Package epub parses EPUB containers, extracts package metadata and the
// cover image, and produces the publish manifest (file info plus segment
// digest list) paired with the segment payloads.
package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"bookfeed/internal/chunker"
	"bookfeed/internal/common"
)

// EpubMediaType is the media type recorded in every book manifest.
const EpubMediaType = "application/epub+zip"

// SegmentRef is one entry of a manifest's declared segment list.
type SegmentRef struct {
	ID     string `json:"id"`
	SHA256 string `json:"sha256"`
}

// FileInfo is the manifest describing a published book: its whole-file
// digest, name, and the ordered segment digest list.
type FileInfo struct {
	MediaType string       `json:"mediaType"`
	Name      string       `json:"name"`
	Title     string       `json:"title"`
	SHA256    string       `json:"sha256"`
	Segments  []SegmentRef `json:"segments"`
}

// Metadata holds optional, best-effort package metadata. Absent fields stay
// empty; only the title is mandatory and it lives in FileInfo.
type Metadata struct {
	Description string
	Subtitle    string
	ISBN        string
	Author      string
	Translator  string
	PublishDate string
	Publisher   string
	Language    string
	Subjects    []string
}

// Package is a verified EPUB ready for publishing.
type Package struct {
	FileInfo FileInfo
	Metadata Metadata
	Cover    []byte
	Segments []chunker.Segment
}

// Verifier parses raw EPUB bytes into a Package. ChunkSize controls how the
// file is split for publishing; zero means chunker.DefaultChunkSize.
type Verifier struct {
	ChunkSize int
}

func NewVerifier() *Verifier {
	return &Verifier{ChunkSize: chunker.DefaultChunkSize}
}

type containerXML struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Metadata opfMetadata `xml:"metadata"`
	Manifest []opfItem   `xml:"manifest>item"`
}

type opfItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type opfElem struct {
	Value string     `xml:",chardata"`
	Attrs []xml.Attr `xml:",any,attr"`
}

type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"`
	Property string `xml:"property,attr"`
	Value    string `xml:",chardata"`
}

type opfMetadata struct {
	Titles       []opfElem `xml:"title"`
	Creators     []opfElem `xml:"creator"`
	Contributors []opfElem `xml:"contributor"`
	Identifiers  []opfElem `xml:"identifier"`
	Descriptions []opfElem `xml:"description"`
	Publishers   []opfElem `xml:"publisher"`
	Dates        []opfElem `xml:"date"`
	Languages    []opfElem `xml:"language"`
	Subjects     []opfElem `xml:"subject"`
	Metas        []opfMeta `xml:"meta"`
}

// attrValue returns the first attribute whose local name matches any of the
// given spellings. Namespace prefixes are ignored on purpose: real-world
// EPUBs mix opf:scheme, scheme and friends.
func attrValue(attrs []xml.Attr, names ...string) string {
	for _, want := range names {
		for _, a := range attrs {
			if a.Name.Local == want {
				return a.Value
			}
		}
	}
	return ""
}

func firstValue(elems []opfElem) string {
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// Parse opens data as an EPUB archive and returns the verified package.
// A missing mimetype entry, container.xml, package document or title yields
// common.ErrMalformedPackage; every other metadata field is optional.
func (v *Verifier) Parse(fileName string, data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip archive: %v", common.ErrMalformedPackage, err)
	}

	if _, err := readZipFile(zr, "mimetype"); err != nil {
		return nil, fmt.Errorf("%w: missing mimetype entry", common.ErrMalformedPackage)
	}

	containerBytes, err := readZipFile(zr, "META-INF/container.xml")
	if err != nil {
		return nil, fmt.Errorf("%w: missing META-INF/container.xml", common.ErrMalformedPackage)
	}

	var cont containerXML
	if err := xml.Unmarshal(containerBytes, &cont); err != nil {
		return nil, fmt.Errorf("%w: bad container.xml: %v", common.ErrMalformedPackage, err)
	}
	if len(cont.Rootfiles) == 0 || cont.Rootfiles[0].FullPath == "" {
		return nil, fmt.Errorf("%w: container.xml declares no rootfile", common.ErrMalformedPackage)
	}

	opfPath := cont.Rootfiles[0].FullPath
	opfBytes, err := readZipFile(zr, opfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: missing package document %s", common.ErrMalformedPackage, opfPath)
	}

	var pkg opfPackage
	if err := xml.Unmarshal(opfBytes, &pkg); err != nil {
		return nil, fmt.Errorf("%w: bad package document: %v", common.ErrMalformedPackage, err)
	}

	title := firstValue(pkg.Metadata.Titles)
	if title == "" {
		return nil, fmt.Errorf("%w: package has no title", common.ErrMalformedPackage)
	}

	meta := extractMetadata(&pkg.Metadata)
	cover := extractCover(zr, &pkg, opfPath)

	size := v.ChunkSize
	if size <= 0 {
		size = chunker.DefaultChunkSize
	}
	segments := chunker.Split(data, size)

	refs := make([]SegmentRef, len(segments))
	for i, s := range segments {
		refs[i] = SegmentRef{ID: s.ID, SHA256: s.SHA256}
	}

	return &Package{
		FileInfo: FileInfo{
			MediaType: EpubMediaType,
			Name:      fileName,
			Title:     title,
			SHA256:    chunker.Digest(data),
			Segments:  refs,
		},
		Metadata: meta,
		Cover:    cover,
		Segments: segments,
	}, nil
}

func extractMetadata(md *opfMetadata) Metadata {
	meta := Metadata{
		Description: firstValue(md.Descriptions),
		Publisher:   firstValue(md.Publishers),
		PublishDate: firstValue(md.Dates),
		Language:    firstValue(md.Languages),
	}

	// Any title after the first is treated as a subtitle.
	var seen bool
	for _, t := range md.Titles {
		v := strings.TrimSpace(t.Value)
		if v == "" {
			continue
		}
		if !seen {
			seen = true
			continue
		}
		meta.Subtitle = v
		break
	}

	for _, id := range md.Identifiers {
		scheme := attrValue(id.Attrs, "scheme", "opf:scheme", "Scheme")
		if strings.EqualFold(scheme, "isbn") {
			meta.ISBN = strings.TrimSpace(id.Value)
			break
		}
	}

	for _, c := range md.Creators {
		role := attrValue(c.Attrs, "role")
		switch {
		case role == "trl" && meta.Translator == "":
			meta.Translator = strings.TrimSpace(c.Value)
		case meta.Author == "":
			meta.Author = strings.TrimSpace(c.Value)
		}
	}
	for _, c := range md.Contributors {
		if attrValue(c.Attrs, "role") == "trl" && meta.Translator == "" {
			meta.Translator = strings.TrimSpace(c.Value)
		}
	}

	for _, s := range md.Subjects {
		if v := strings.TrimSpace(s.Value); v != "" {
			meta.Subjects = append(meta.Subjects, v)
		}
	}

	return meta
}

// extractCover resolves meta[name=cover] through the manifest and reads the
// referenced image. Any failure along the way is non-fatal and yields nil.
func extractCover(zr *zip.Reader, pkg *opfPackage, opfPath string) []byte {
	var coverID string
	for _, m := range pkg.Metadata.Metas {
		if m.Name == "cover" && m.Content != "" {
			coverID = m.Content
			break
		}
	}
	if coverID == "" {
		return nil
	}

	var href string
	for _, item := range pkg.Manifest {
		if item.ID == coverID && item.Href != "" {
			href = item.Href
			break
		}
	}
	if href == "" {
		return nil
	}

	coverPath := path.Join(path.Dir(opfPath), href)
	cover, err := readZipFile(zr, coverPath)
	if err != nil {
		return nil
	}
	return cover
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
