package stackgan

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// Fuse Broadcasts conditioning vector c (N, D) over every spatial position of feature map (N, H, W, Cf)
// and concatenates it after the map's channels: result is (N, H, W, Cf+D).
//
// First Cf channels of the result are the feature map unchanged, last D channels equal c at every position.
func Fuse(c, featureMap *gorgonia.Node) (*gorgonia.Node, error) {
	if err := checkTrailing("Fuse", featureMap.Shape(), 4, -1, -1, -1); err != nil {
		return nil, err
	}
	channelsFirst, err := toChannelsFirst(featureMap)
	if err != nil {
		return nil, errors.Wrap(err, "Can't transpose feature map")
	}
	fused, err := fuseChannelsFirst(c, channelsFirst)
	if err != nil {
		return nil, err
	}
	return toChannelsLast(fused)
}

// fuseChannelsFirst Same as Fuse, but for (N, Cf, H, W) layout
func fuseChannelsFirst(c, featureMap *gorgonia.Node) (*gorgonia.Node, error) {
	if err := checkTrailing("Fuse", c.Shape(), 2, -1, -1); err != nil {
		return nil, err
	}
	if err := checkTrailing("Fuse", featureMap.Shape(), 4, -1, -1, -1); err != nil {
		return nil, err
	}
	if err := checkBatch("Fuse", c.Shape(), featureMap.Shape()); err != nil {
		return nil, err
	}
	h, w := featureMap.Shape()[2], featureMap.Shape()[3]
	tiled, err := tile(c, h, w)
	if err != nil {
		return nil, errors.Wrap(err, "Can't tile conditioning vector")
	}
	fused, err := gorgonia.Concat(1, featureMap, tiled)
	if err != nil {
		return nil, errors.Wrap(err, "Can't concatenate feature map and conditioning vector")
	}
	return fused, nil
}
