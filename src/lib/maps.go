package lib

import (
	"context"
	"log"

	"promarket/src/config"

	"googlemaps.github.io/maps"
)

var mapsClient *maps.Client

func GetMapsClient() (*maps.Client, error) {
	if mapsClient != nil {
		return mapsClient, nil
	}
	cli, err := maps.NewClient(maps.WithAPIKey(config.GAPI_API_KEY))
	if err != nil {
		return nil, err
	}
	mapsClient = cli
	return cli, nil
}

// GeocodeAddress resolves a service address to "lat,lng". Returns an
// empty string when the address cannot be resolved so callers can store
// the booking without coordinates.
func GeocodeAddress(ctx context.Context, address string) string {
	cli, err := GetMapsClient()
	if err != nil {
		log.Printf("[Maps] Error initializing client: %s\n", err.Error())
		return ""
	}
	results, err := cli.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil || len(results) == 0 {
		log.Printf("[Maps] Could not geocode address: %s\n", address)
		return ""
	}
	loc := results[0].Geometry.Location
	return loc.String()
}
