// Package normalize converts raw API catch records into canonical catches,
// resolving each record's location and the identifier used for dedup.
package normalize

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/fishdata/catchgrid/internal/grid"
	"github.com/fishdata/catchgrid/internal/model"
)

// ErrMalformedRecord is returned when a raw record lacks a usable catch
// identifier. Such records are dropped and counted, never fatal to a run.
var ErrMalformedRecord = eris.New("normalize: malformed record")

// The raw structs mirror only the fields the pipeline depends on; everything
// else the API sends is ignored, which keeps additive schema changes safe.
type rawNode struct {
	ID          string      `json:"_id"`
	CaughtAtGmt string      `json:"caughtAtGmt"`
	Latitude    *float64    `json:"latitude"`
	Longitude   *float64    `json:"longitude"`
	Species     *rawSpecies `json:"species"`
	Post        *rawPost    `json:"post"`
}

type rawPost struct {
	Catch      *rawCatch `json:"catch"`
	LikesCount int       `json:"likesCount"`
	Text       *rawText  `json:"text"`
	User       *rawRef   `json:"user"`
}

type rawCatch struct {
	FishingWater *rawWater   `json:"fishingWater"`
	Species      *rawSpecies `json:"species"`
}

type rawWater struct {
	ID          string   `json:"_id"`
	DisplayName string   `json:"displayName"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type rawSpecies struct {
	ID          string `json:"_id"`
	DisplayName string `json:"displayName"`
}

type rawText struct {
	Text string `json:"text"`
}

type rawRef struct {
	ID string `json:"_id"`
}

// Normalize maps one raw API record into a canonical catch. Location
// resolution order: the record's own point location, then its waterbody's
// location, then the origin cell's WGS84 centroid (source=grid-fallback).
// The raw payload is carried along for auditing.
func Normalize(raw json.RawMessage, origin grid.Cell) (model.Catch, error) {
	var node rawNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return model.Catch{}, eris.Wrapf(ErrMalformedRecord, "decode: %v", err)
	}
	if node.ID == "" {
		return model.Catch{}, eris.Wrap(ErrMalformedRecord, "missing catch identifier")
	}

	c := model.Catch{
		CatchID:    node.ID,
		CaughtAt:   node.CaughtAtGmt,
		OriginCell: origin.Index,
		Raw:        raw,
	}

	species := node.Species
	var water *rawWater
	if node.Post != nil {
		c.LikesCount = node.Post.LikesCount
		if node.Post.Text != nil {
			c.Text = node.Post.Text.Text
		}
		if node.Post.User != nil {
			c.UserID = node.Post.User.ID
		}
		if node.Post.Catch != nil {
			water = node.Post.Catch.FishingWater
			if species == nil {
				species = node.Post.Catch.Species
			}
		}
	}

	if species != nil {
		c.SpeciesID = species.ID
		c.SpeciesName = species.DisplayName
	}
	if water != nil {
		c.WaterbodyID = water.ID
		c.WaterbodyName = water.DisplayName
	}

	switch {
	case node.Longitude != nil && node.Latitude != nil:
		c.Source = model.SourceExplicit
		c.Longitude = *node.Longitude
		c.Latitude = *node.Latitude
	case water != nil && water.Longitude != nil && water.Latitude != nil:
		c.Source = model.SourceExplicit
		c.Longitude = *water.Longitude
		c.Latitude = *water.Latitude
	default:
		c.Source = model.SourceGridFallback
		c.Longitude = origin.CentroidWGS84.X
		c.Latitude = origin.CentroidWGS84.Y
	}

	return c, nil
}
