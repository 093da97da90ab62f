package main

import (
	"fmt"

	"github.com/akmonengine/plume"
	"github.com/akmonengine/plume/config"
	"github.com/akmonengine/plume/mass"
	"github.com/go-gl/mathgl/mgl64"
)

// SetupScene creates a scene with a crate above flat ground and a linked lid.
func SetupScene() (*plume.Scene, *plume.Prim, *plume.Prim) {
	scene, err := plume.NewScene(config.Default(), plume.FlatEnvironment{Ground: 25, Water: 20})
	if err != nil {
		panic(err)
	}

	crate, err := scene.AddPrim("crate", mgl64.Vec3{128, 128, 30}, mgl64.QuatRotate(0.4, mgl64.Vec3{0, 0, 1}), mass.Box(), mgl64.Vec3{2, 2, 2}, true)
	if err != nil {
		panic(err)
	}
	lid, err := scene.AddPrim("lid", mgl64.Vec3{128, 128, 31.1}, mgl64.QuatIdent(), mass.Cylinder(), mgl64.Vec3{2, 2, 0.2}, false)
	if err != nil {
		panic(err)
	}
	lid.Link(crate)
	crate.SubscribeEvents(0)

	scene.Subscribe(plume.COLLISIONS, func(event plume.Event) {
		e := event.(plume.CollisionsEvent)
		if len(e.Collisions) == 0 {
			fmt.Printf("  actor %d: collision ended\n", e.ActorID)
			return
		}
		fmt.Printf("  actor %d: %d contacts, first with %d at %v\n", e.ActorID, len(e.Collisions), e.Collisions[0].OtherID, e.Collisions[0].Point)
	})
	scene.Subscribe(plume.UPDATE_STOPPED, func(event plume.Event) {
		fmt.Printf("  actor %d came to rest at %v\n", event.Actor(), event.(plume.StoppedEvent).Position)
	})

	return scene, crate, lid
}

// DropCrate steps the scene until the linked crate settles on the ground.
func DropCrate() {
	fmt.Println("Drop test: linked crate falling on flat ground")
	fmt.Println("==============================================")

	scene, crate, lid := SetupScene()

	const maxSteps int = 300
	for step := 0; step < maxSteps; step++ {
		scene.Step()

		if step%30 == 0 {
			fmt.Printf("--- STEP %d ---\n", step+1)
			fmt.Printf("  Crate: position %v velocity %v mass %.3f\n", crate.Position(), crate.Velocity(), crate.Mass())
			fmt.Printf("  Lid:   position %v (child of %d)\n", lid.Position(), lid.RootID())
		}
		if crate.IsStopped() {
			fmt.Printf("Crate stopped after %d steps\n", step+1)
			break
		}
	}

	fmt.Println("Test finished!")
}

func main() {
	DropCrate()
}
