package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/core/usecases"
	"github.com/samirrijal/pklocator/internal/pkg/fixcodec"
)

const maxWarmLines = 50

// PostFixHandler runs a submitted sample through the engine and returns the
// resulting snapshot.
func PostFixHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !deps.Locator.Ready() {
			return errUnavailable(c, "line index not loaded")
		}

		device := deps.Locator.Snapshot().DeviceID
		sample, err := fixcodec.DecodeSample(c.Body(), device, time.Now().UTC())
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		snap, err := deps.Locator.Process(c.UserContext(), sample)
		switch {
		case errors.Is(err, usecases.ErrSuperseded):
			return errConflict(c, "superseded by a newer fix")
		case err != nil:
			LoggerFromCtx(c.UserContext()).Error("process fix", "error", err)
			return errInternal(c, err.Error())
		}
		return c.JSON(snap)
	}
}

// PositionHandler returns the latest snapshot.
func PositionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Locator.Snapshot())
	}
}

// LocateHandler answers "which PK is this point at" without touching the
// tracked position.
func LocateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat, lon, err := parseLatLon(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		located, err := deps.Locator.Locate(c.UserContext(), lat, lon)
		switch {
		case errors.Is(err, usecases.ErrNotReady):
			return errUnavailable(c, "line index not loaded")
		case err != nil:
			return errInternal(c, err.Error())
		case located == nil:
			return errNotFound(c, "no kilometer point found near this position")
		}
		return c.JSON(located)
	}
}

// ListLinesHandler returns the line index, paginated.
func ListLinesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		index := deps.Locator.Index()
		if index == nil {
			return errUnavailable(c, "line index not loaded")
		}
		lines := index.Entries()

		offset, limit := parsePage(c, 100, 500)
		pg := Pagination{Offset: offset, Limit: limit, Total: len(lines)}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page(lines, pg), Pagination: pg})
	}
}

// NearbyLinesHandler returns the lines whose padded box contains a point.
func NearbyLinesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat, lon, err := parseLatLon(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		index := deps.Locator.Index()
		if index == nil {
			return errUnavailable(c, "line index not loaded")
		}

		lines := index.CandidatesNear(lat, lon)
		if lines == nil {
			lines = []domain.LineIndexEntry{}
		}
		return c.JSON(fiber.Map{
			"margin_deg": index.Margin(),
			"lines":      lines,
		})
	}
}

// GetLineHandler returns one index entry.
func GetLineHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		index := deps.Locator.Index()
		if index == nil {
			return errUnavailable(c, "line index not loaded")
		}
		entry, ok := index.Lookup(c.Params("code"))
		if !ok {
			return errNotFound(c, "line not found")
		}
		return c.JSON(entry)
	}
}

// LinePointsHandler returns the PK points of a line, loading them through the
// cache.
func LinePointsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		index := deps.Locator.Index()
		if index == nil {
			return errUnavailable(c, "line index not loaded")
		}
		code := c.Params("code")
		if _, ok := index.Lookup(code); !ok {
			return errNotFound(c, "line not found")
		}

		points, ok := deps.Locator.Cache().Get(c.UserContext(), code)
		if !ok {
			return errUnavailable(c, "points of line "+code+" could not be loaded")
		}
		return c.JSON(fiber.Map{
			"line":   code,
			"count":  len(points),
			"points": points,
		})
	}
}

// CacheStatsHandler reports the point cache state.
func CacheStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Locator.Cache().Stats())
	}
}

// PurgeCacheHandler empties the point cache.
func PurgeCacheHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n := deps.Locator.Cache().Purge()
		LoggerFromCtx(c.UserContext()).Info("point cache purged", "lines", n)
		return c.JSON(fiber.Map{"purged": n})
	}
}

// EvictCacheHandler drops one line from the point cache.
func EvictCacheHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		code := c.Params("code")
		if !deps.Locator.Cache().Evict(code) {
			return errNotFound(c, "line not cached")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

type warmRequest struct {
	Lines []string `json:"lines"`
}

// WarmCacheHandler loads the given lines ahead of use.
func WarmCacheHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req warmRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Lines) == 0 {
			return errBadRequest(c, "lines is required")
		}
		if len(req.Lines) > maxWarmLines {
			return errBadRequest(c, "too many lines (max "+strconv.Itoa(maxWarmLines)+")")
		}

		failed := deps.Locator.Cache().Warm(c.UserContext(), req.Lines...)
		if failed == nil {
			failed = []string{}
		}
		return c.JSON(fiber.Map{
			"requested": len(req.Lines),
			"failed":    failed,
		})
	}
}

// CadenceHandler returns the sampling interval for a speed.
func CadenceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Query("speed")
		if raw == "" {
			return errBadRequest(c, "speed is required")
		}
		kmh, err := strconv.ParseFloat(raw, 64)
		if err != nil || kmh < 0 {
			return errBadRequest(c, "speed must be a non-negative number (km/h)")
		}
		interval := deps.Locator.DesiredInterval(kmh)
		return c.JSON(fiber.Map{
			"speed_kmh":   kmh,
			"interval_ms": interval.Milliseconds(),
		})
	}
}

func parseLatLon(c *fiber.Ctx) (float64, float64, error) {
	rawLat, rawLon := c.Query("lat"), c.Query("lon")
	if rawLat == "" || rawLon == "" {
		return 0, 0, errors.New("lat and lon are required")
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, errors.New("lat must be between -90 and 90")
	}
	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil || lon < -180 || lon > 180 {
		return 0, 0, errors.New("lon must be between -180 and 180")
	}
	return lat, lon, nil
}
