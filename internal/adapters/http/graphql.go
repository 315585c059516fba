package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/core/usecases"
)

// buildSchema creates the GraphQL schema wired to the locator.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	locatedType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LocatedPK",
		Fields: graphql.Fields{
			"pk":         &graphql.Field{Type: graphql.Float},
			"raw_pk":     &graphql.Field{Type: graphql.Float},
			"line":       &graphql.Field{Type: graphql.String},
			"lat":        &graphql.Field{Type: graphql.Float},
			"lon":        &graphql.Field{Type: graphql.Float},
			"distance_m": &graphql.Field{Type: graphql.Float},
			"corrected":  &graphql.Field{Type: graphql.Boolean},
			"correction": &graphql.Field{Type: graphql.Float},
		},
	})

	snapshotType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Snapshot",
		Fields: graphql.Fields{
			"device_id":      &graphql.Field{Type: graphql.String},
			"sequence":       &graphql.Field{Type: graphql.Int},
			"located":        &graphql.Field{Type: locatedType},
			"speed_kmh":      &graphql.Field{Type: graphql.Float},
			"speed_known":    &graphql.Field{Type: graphql.Boolean},
			"accuracy":       &graphql.Field{Type: graphql.Float},
			"accuracy_level": &graphql.Field{Type: graphql.String},
			"status":         &graphql.Field{Type: graphql.String},
			"interval_ms":    &graphql.Field{Type: graphql.Int},
			"updated_at":     &graphql.Field{Type: graphql.String},
		},
	})

	lineType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Line",
		Fields: graphql.Fields{
			"code":   &graphql.Field{Type: graphql.String},
			"minLat": &graphql.Field{Type: graphql.Float},
			"maxLat": &graphql.Field{Type: graphql.Float},
			"minLon": &graphql.Field{Type: graphql.Float},
			"maxLon": &graphql.Field{Type: graphql.Float},
		},
	})

	cacheType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CacheStats",
		Fields: graphql.Fields{
			"size":      &graphql.Field{Type: graphql.Int},
			"capacity":  &graphql.Field{Type: graphql.Int},
			"hits":      &graphql.Field{Type: graphql.Int},
			"misses":    &graphql.Field{Type: graphql.Int},
			"loads":     &graphql.Field{Type: graphql.Int},
			"failures":  &graphql.Field{Type: graphql.Int},
			"evictions": &graphql.Field{Type: graphql.Int},
			"lines":     &graphql.Field{Type: graphql.NewList(graphql.String)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"position": &graphql.Field{
				Type:        snapshotType,
				Description: "Latest tracked position",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return snapshotMap(deps.Locator.Snapshot()), nil
				},
			},
			"locate": &graphql.Field{
				Type:        locatedType,
				Description: "Kilometer point at a position (null when no line covers it)",
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lat := p.Args["lat"].(float64)
					lon := p.Args["lon"].(float64)
					if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
						return nil, errors.New("lat/lon out of range")
					}
					located, err := deps.Locator.Locate(p.Context, lat, lon)
					if err != nil || located == nil {
						return nil, err
					}
					return locatedMap(located), nil
				},
			},
			"linesNear": &graphql.Field{
				Type:        graphql.NewList(lineType),
				Description: "Lines whose padded bounding box contains a position",
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					index := deps.Locator.Index()
					if index == nil {
						return nil, usecases.ErrNotReady
					}
					lat := p.Args["lat"].(float64)
					lon := p.Args["lon"].(float64)
					var result []map[string]interface{}
					for _, e := range index.CandidatesNear(lat, lon) {
						result = append(result, map[string]interface{}{
							"code":   e.Code,
							"minLat": e.MinLat,
							"maxLat": e.MaxLat,
							"minLon": e.MinLon,
							"maxLon": e.MaxLon,
						})
					}
					return result, nil
				},
			},
			"cache": &graphql.Field{
				Type:        cacheType,
				Description: "Point cache statistics",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					st := deps.Locator.Cache().Stats()
					return map[string]interface{}{
						"size":      st.Size,
						"capacity":  st.Capacity,
						"hits":      int(st.Hits),
						"misses":    int(st.Misses),
						"loads":     int(st.Loads),
						"failures":  int(st.Failures),
						"evictions": int(st.Evictions),
						"lines":     st.Lines,
					}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

func locatedMap(l *domain.LocatedPK) map[string]interface{} {
	return map[string]interface{}{
		"pk":         l.PK,
		"raw_pk":     l.RawPK,
		"line":       l.Line,
		"lat":        l.Lat,
		"lon":        l.Lon,
		"distance_m": l.DistanceMeters,
		"corrected":  l.Corrected,
		"correction": l.Correction,
	}
}

func snapshotMap(s domain.Snapshot) map[string]interface{} {
	m := map[string]interface{}{
		"device_id":      s.DeviceID,
		"sequence":       int(s.Sequence),
		"speed_kmh":      s.SpeedKmh,
		"speed_known":    s.SpeedKnown,
		"accuracy_level": string(s.AccuracyLevel),
		"status":         string(s.Status),
		"interval_ms":    int(s.IntervalMS),
	}
	if s.Located != nil {
		m["located"] = locatedMap(s.Located)
	}
	if s.Accuracy != nil {
		m["accuracy"] = *s.Accuracy
	}
	if !s.UpdatedAt.IsZero() {
		m["updated_at"] = s.UpdatedAt.Format(time.RFC3339Nano)
	}
	return m
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
