package fixtures

import (
	"math"

	"github.com/i5heu/geomodel-db/pkg/geo"
	"github.com/i5heu/geomodel-db/pkg/trf"
	"github.com/i5heu/geomodel-db/pkg/xf"
)

// Detector is a small but complete geometry: shared shapes, materials and volumes,
// every child kind, a boolean shape, and a serial transformer.
type Detector struct {
	G *geo.Graph

	World   geo.NodeID
	Barrel  geo.NodeID // FullPhysVol, added twice under World
	Module  geo.NodeID // PhysVol shared by the barrel and the serial transformer
	Sensor  geo.NodeID // FullPhysVol inside Module
	Endcap  geo.NodeID // second FullPhysVol under World
	Align   geo.NodeID // alignable transform in front of Endcap
	Ring    geo.NodeID // serial transformer under World
	Air     geo.NodeID
	Silicon geo.NodeID
	BoxCut  geo.NodeID // subtraction shape with two operands
}

// NewDetector builds the sample geometry.
func NewDetector() *Detector {
	g := geo.New()
	d := &Detector{G: g}

	n := g.NewElement("Nitrogen", "N", 7, 14.007)
	o := g.NewElement("Oxygen", "O", 8, 15.999)
	si := g.NewElement("Silicon", "Si", 14, 28.085)

	d.Air = g.NewMaterial("Air", 0.0012)
	g.AddComponent(d.Air, n, 0.755)
	g.AddComponent(d.Air, o, 0.245)
	d.Silicon = g.NewMaterial("Silicon", 2.33)
	g.AddComponent(d.Silicon, si, 1)

	worldBox := g.NewShape("Box", []float64{5000, 5000, 10000})
	tube := g.NewShape("Tube", []float64{300, 1100, 2800})
	slab := g.NewShape("Box", []float64{40, 0.1, 0.32})
	hole := g.NewShape("Tube", []float64{0, 5, 0.32})
	d.BoxCut = g.NewShape("Subtraction", []float64{0.1 + 0.2}, slab, hole)

	worldLV := g.NewLogVol("World", worldBox, d.Air)
	barrelLV := g.NewLogVol("Barrel", tube, d.Air)
	moduleLV := g.NewLogVol("Module", slab, d.Silicon)
	sensorLV := g.NewLogVol("Sensor", d.BoxCut, d.Silicon)

	d.World = g.NewRootVolume(worldLV)
	d.Barrel = g.NewFullPhysVol(barrelLV)
	d.Module = g.NewPhysVol(moduleLV)
	d.Sensor = g.NewFullPhysVol(sensorLV)
	d.Endcap = g.NewFullPhysVol(barrelLV)

	g.AddChild(d.Module, g.NewNameTag("Sensor"))
	g.AddChild(d.Module, g.NewIdentifierTag(42))
	g.AddChild(d.Module, g.NewTransform(trf.Translate(0, 0, 0.1)))
	g.AddChild(d.Module, d.Sensor)

	step := g.NewTransform(trf.RotateZ(math.Pi / 8))
	g.AddChild(d.Barrel, g.NewSerialDenominator("Module"))
	g.AddChild(d.Barrel, g.NewSerialIdentifier(100))
	for i := 0; i < 3; i++ {
		g.AddChild(d.Barrel, step)
		g.AddChild(d.Barrel, d.Module)
	}

	fn := g.NewFunction(xf.XFPow{T: trf.RotateZ(math.Pi / 4).Mul(trf.Translate(400, 0, 0)), F: xf.Linear(1, 0.5)})
	d.Ring = g.NewSerialTransformer(fn, d.Module, 8)

	d.Align = g.NewAlignableTransform(trf.Translate(0, 0, 3000))
	g.AddChild(d.World, g.NewNameTag("Barrel"))
	g.AddChild(d.World, d.Barrel)
	g.AddChild(d.World, g.NewTransform(trf.Translate(0, 0, -3000)))
	g.AddChild(d.World, d.Barrel)
	g.AddChild(d.World, d.Align)
	g.AddChild(d.World, d.Endcap)
	g.AddChild(d.World, d.Ring)
	return d
}

// NewLayered builds a tree of depth layers below a world volume. Every layer holds width
// distinct FullPhysVols that share one logical volume; each of them places every volume of
// the next layer once, so the unique node count grows linearly while the number of
// placements grows as width^depth.
func NewLayered(depth, width int) *geo.Graph {
	g := geo.New()
	fe := g.NewElement("Iron", "Fe", 26, 55.845)
	iron := g.NewMaterial("Iron", 7.874)
	g.AddComponent(iron, fe, 1)
	box := g.NewShape("Box", []float64{10, 10, 10})

	world := g.NewRootVolume(g.NewLogVol("World", box, iron))
	parents := []geo.NodeID{world}
	for layer := 0; layer < depth; layer++ {
		lv := g.NewLogVol("Layer", box, iron)
		next := make([]geo.NodeID, width)
		for i := range next {
			next[i] = g.NewFullPhysVol(lv)
			g.AddChild(next[i], g.NewIdentifierTag(int32(layer*width+i)))
		}
		for _, p := range parents {
			for i, v := range next {
				g.AddChild(p, g.NewTransform(trf.Translate(float64(i), 0, float64(layer))))
				g.AddChild(p, v)
			}
		}
		parents = next
	}
	return g
}
