package http

import (
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/osmfj/MapComplete/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to the loader.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"north": &graphql.Field{Type: graphql.Float},
			"south": &graphql.Field{Type: graphql.Float},
			"east":  &graphql.Field{Type: graphql.Float},
			"west":  &graphql.Field{Type: graphql.Float},
		},
	})

	viewportType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Viewport",
		Fields: graphql.Fields{
			"center": &graphql.Field{Type: geoPointType},
			"zoom":   &graphql.Field{Type: graphql.Float},
			"bounds": &graphql.Field{Type: boundsType},
		},
	})

	stateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LoaderState",
		Fields: graphql.Fields{
			"running_query":       &graphql.Field{Type: graphql.Boolean},
			"retry_count":         &graphql.Field{Type: graphql.Int},
			"sufficiently_zoomed": &graphql.Field{Type: graphql.Boolean},
			"freshness":           &graphql.Field{Type: graphql.DateTime},
			"feature_count":       &graphql.Field{Type: graphql.Int},
			"cached_bounds":       &graphql.Field{Type: graphql.Int},
			"viewport":            &graphql.Field{Type: viewportType},
		},
	})

	layerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Layer",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.String},
			"name":            &graphql.Field{Type: graphql.String},
			"minzoom":         &graphql.Field{Type: graphql.Int},
			"tags":            &graphql.Field{Type: graphql.String},
			"do_not_download": &graphql.Field{Type: graphql.Boolean},
		},
	})

	layoutType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Layout",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"widen_factor": &graphql.Field{Type: graphql.Float},
			"layers":       &graphql.Field{Type: graphql.NewList(layerType)},
		},
	})

	bucketType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CoverageBucket",
		Fields: graphql.Fields{
			"zoom":   &graphql.Field{Type: graphql.Int},
			"bounds": &graphql.Field{Type: graphql.NewList(boundsType)},
		},
	})

	fetchType := graphql.NewObject(graphql.ObjectConfig{
		Name: "FetchRecord",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"started_at":    &graphql.Field{Type: graphql.DateTime},
			"zoom_bucket":   &graphql.Field{Type: graphql.Int},
			"bounds":        &graphql.Field{Type: boundsType},
			"filter":        &graphql.Field{Type: graphql.String},
			"layers":        &graphql.Field{Type: graphql.NewList(graphql.String)},
			"outcome":       &graphql.Field{Type: graphql.String},
			"error":         &graphql.Field{Type: graphql.String},
			"feature_count": &graphql.Field{Type: graphql.Int},
			"retry_count":   &graphql.Field{Type: graphql.Int},
			"data_time":     &graphql.Field{Type: graphql.DateTime},
			"duration_ms": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					rec := p.Source.(domain.FetchRecord)
					return int(rec.Duration.Milliseconds()), nil
				},
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"state": &graphql.Field{
				Type:        stateType,
				Description: "Current loader state",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Loader.State(), nil
				},
			},
			"layout": &graphql.Field{
				Type:        layoutType,
				Description: "Active layout",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return newLayoutView(deps.Layouts.Layout()), nil
				},
			},
			"coverage": &graphql.Field{
				Type:        graphql.NewList(bucketType),
				Description: "Fetched rectangles per zoom bucket",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var out []coverageBucket
					for z, b := range deps.Loader.Coverage() {
						out = append(out, coverageBucket{Zoom: z, Bounds: b})
					}
					sort.Slice(out, func(i, j int) bool { return out[i].Zoom < out[j].Zoom })
					return out, nil
				},
			},
			"fetches": &graphql.Field{
				Type:        graphql.NewList(fetchType),
				Description: "Most recent fetches, newest first",
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.FetchLog == nil {
						return []domain.FetchRecord{}, nil
					}
					limit := p.Args["limit"].(int)
					if limit <= 0 || limit > maxFetchHistory {
						limit = 20
					}
					return deps.FetchLog.ListRecent(p.Context, limit)
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"forceRefresh": &graphql.Field{
				Type:        graphql.Boolean,
				Description: "Forget all coverage and reload; true if a query was started",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Loader.ForceRefresh(p.Context), nil
				},
			},
			"setViewport": &graphql.Field{
				Type:        stateType,
				Description: "Report the client's map view",
				Args: graphql.FieldConfigArgument{
					"north": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"south": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"east":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"west":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"zoom":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					vp := domain.Viewport{
						Zoom: p.Args["zoom"].(float64),
						Bounds: domain.Bounds{
							North: p.Args["north"].(float64),
							South: p.Args["south"].(float64),
							East:  p.Args["east"].(float64),
							West:  p.Args["west"].(float64),
						},
					}
					if err := deps.Viewports.Report(vp); err != nil {
						return nil, err
					}
					return deps.Loader.State(), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
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
