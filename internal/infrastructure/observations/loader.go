// Package observations reads extraction output for a run from disk.
package observations

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rotisserie/eris"

	"github.com/pricelens/backend/internal/domain"
)

// listingFile is a listing tile whose image lives next to the observations file
type listingFile struct {
	ImagePath      string  `json:"imagePath"`
	DisplayName    string  `json:"displayName"`
	DisplayedPrice float64 `json:"displayedPrice"`
}

type storeFile struct {
	StoreID    string                `json:"storeId"`
	Text       string                `json:"text"`
	TextFile   string                `json:"textFile"`
	Candidates []domain.RawCandidate `json:"candidates"`
	Listings   []listingFile         `json:"listings"`
}

type document struct {
	Stores []storeFile `json:"stores"`
}

// Load reads an observations document. Relative text and image paths are
// resolved against the document's directory.
func Load(path string) ([]domain.StoreObservation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open observations %s", path)
	}
	defer f.Close()

	obs, err := Decode(f, filepath.Dir(path))
	if err != nil {
		return nil, eris.Wrapf(err, "load observations %s", path)
	}
	return obs, nil
}

// Decode parses an observations document, reading referenced files under baseDir.
func Decode(r io.Reader, baseDir string) ([]domain.StoreObservation, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if len(doc.Stores) == 0 {
		return nil, fmt.Errorf("%w: no stores in observations", domain.ErrInvalidRequest)
	}

	out := make([]domain.StoreObservation, 0, len(doc.Stores))
	for i, s := range doc.Stores {
		if strings.TrimSpace(s.StoreID) == "" {
			return nil, fmt.Errorf("%w: store entry %d has no storeId", domain.ErrInvalidRequest, i)
		}

		obs := domain.StoreObservation{
			StoreID:    s.StoreID,
			Text:       s.Text,
			Candidates: s.Candidates,
		}
		if s.TextFile != "" {
			raw, err := os.ReadFile(resolve(baseDir, s.TextFile))
			if err != nil {
				return nil, eris.Wrapf(err, "store %s text", s.StoreID)
			}
			obs.Text = joinText(obs.Text, string(raw))
		}

		for _, l := range s.Listings {
			listing, err := readListing(baseDir, l)
			if err != nil {
				return nil, eris.Wrapf(err, "store %s listing", s.StoreID)
			}
			obs.Listings = append(obs.Listings, listing)
		}
		out = append(out, obs)
	}
	return out, nil
}

func readListing(baseDir string, l listingFile) (domain.ListingImage, error) {
	if l.ImagePath == "" {
		return domain.ListingImage{}, fmt.Errorf("%w: listing %q has no imagePath", domain.ErrInvalidRequest, l.DisplayName)
	}
	image, err := os.ReadFile(resolve(baseDir, l.ImagePath))
	if err != nil {
		return domain.ListingImage{}, err
	}
	mediaType, err := DetectMediaType(image)
	if err != nil {
		return domain.ListingImage{}, eris.Wrapf(err, "%s", l.ImagePath)
	}
	return domain.ListingImage{
		Image:          image,
		MediaType:      mediaType,
		DisplayName:    l.DisplayName,
		DisplayedPrice: l.DisplayedPrice,
	}, nil
}

// supportedImageTypes are the media types the vision model accepts
var supportedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// DetectMediaType sniffs image bytes and returns a media type accepted by the
// visual checker, or ErrInvalidRequest for anything else.
func DetectMediaType(image []byte) (string, error) {
	mtype := mimetype.Detect(image)
	for _, supported := range supportedImageTypes {
		if mtype.Is(supported) {
			return supported, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported image type %s", domain.ErrInvalidRequest, mtype.String())
}

// FillMediaTypes sniffs the media type of every listing that arrived without one.
func FillMediaTypes(obs []domain.StoreObservation) error {
	for i := range obs {
		for j := range obs[i].Listings {
			listing := &obs[i].Listings[j]
			if listing.MediaType != "" {
				continue
			}
			mediaType, err := DetectMediaType(listing.Image)
			if err != nil {
				return eris.Wrapf(err, "store %s listing %d", obs[i].StoreID, j)
			}
			listing.MediaType = mediaType
		}
	}
	return nil
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

func joinText(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}
