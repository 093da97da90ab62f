// Package config holds the tunables of a physics scene. Values are loaded
// from YAML over Default and validated before use.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	Scene  Scene  `yaml:"scene"`
	Prim   Prim   `yaml:"prim"`
	Avatar Avatar `yaml:"avatar"`
}

type Scene struct {
	// StepSize is the fixed timestep in seconds.
	StepSize float64 `yaml:"ODE_STEPSIZE"`
	// MaxStepsPerFrame caps the catch-up steps run by one Simulate call.
	MaxStepsPerFrame int `yaml:"max_steps_per_frame"`
	Substeps         int `yaml:"substeps"`
	Workers          int `yaml:"workers"`

	Gravity [3]float64 `yaml:"gravity"`
	// UsePointGravity pulls prims toward PointGravityCenter instead of
	// along Gravity, with the same magnitude.
	UsePointGravity    bool       `yaml:"UsePointGravity"`
	PointGravityCenter [3]float64 `yaml:"point_gravity_center"`

	// WorldSize is the extent of the region, from the origin. MinimumZ is
	// the lowest altitude an actor may reach.
	WorldSize [3]float64 `yaml:"world_size"`
	MinimumZ  float64    `yaml:"minimum_z"`
	CellSize  float64    `yaml:"cell_size"`
	// WaterLevel is used when the environment does not provide one.
	WaterLevel      float64 `yaml:"water_level"`
	TerrainFriction float64 `yaml:"terrain_friction"`

	// CrossingFailureLimit is how many consecutive out-of-bounds corrections
	// an actor gets before it is frozen and reported.
	CrossingFailureLimit int `yaml:"crossing_failure_limit"`

	// An update is published when the pose or velocity of an actor moved
	// further than these since the last one.
	PositionTolerance float64 `yaml:"position_tolerance"`
	VelocityTolerance float64 `yaml:"velocity_tolerance"`
	RotationTolerance float64 `yaml:"rotation_tolerance"`
}

type Prim struct {
	Density     float64 `yaml:"density"`
	MinimumMass float64 `yaml:"minimum_mass"`
	MaximumMass float64 `yaml:"maximum_mass"`
	// MaxForcePerMass caps every force component at mass times this value.
	MaxForcePerMass float64 `yaml:"max_force_per_mass"`
	LinearDrag      float64 `yaml:"linear_drag"`
	AngularDamping  float64 `yaml:"angular_damping"`

	// PIDGain is the velocity gain (1/s) of move-to and hover.
	PIDGain float64 `yaml:"pid_gain"`
	// PIDMaxSpeed bounds the velocity requested by move-to.
	PIDMaxSpeed float64 `yaml:"pid_max_speed"`
	// SnapDistance and SnapVelocity gate the snap-to-target fallback.
	SnapDistance float64 `yaml:"snap_distance"`
	SnapVelocity float64 `yaml:"snap_velocity"`

	AutoDisableFrames  int     `yaml:"auto_disable_frames"`
	AutoDisableLinear  float64 `yaml:"auto_disable_linear"`
	AutoDisableAngular float64 `yaml:"auto_disable_angular"`
}

type Avatar struct {
	CapsuleRadius float64 `yaml:"capsule_radius"`
	Height        float64 `yaml:"height"`
	Density       float64 `yaml:"density"`

	// PIDDamping is the velocity gain (1/s) while walking on the ground;
	// the other regimes scale it.
	PIDDamping         float64 `yaml:"pid_damping"`
	CollidingFlyFactor float64 `yaml:"colliding_fly_factor"`
	FlyFactor          float64 `yaml:"fly_factor"`
	FallFactor         float64 `yaml:"fall_factor"`
	// PIDStand is the position gain (1/s²) lifting a sunk avatar back to
	// standing height.
	PIDStand float64 `yaml:"pid_stand"`

	// StopVelocity is the target speed under which the avatar may stop.
	StopVelocity    float64 `yaml:"stop_velocity"`
	GroundTolerance float64 `yaml:"ground_tolerance"`

	EnforceFlightCeiling bool    `yaml:"enforce_flight_ceiling"`
	FlightCeiling        float64 `yaml:"flight_ceiling"`

	AllowAvGravity  bool    `yaml:"AllowAvGravity"`
	AvGravityHeight float64 `yaml:"AvGravityHeight"`
	// AvGravityRamp is the altitude over AvGravityHeight at which the
	// anti-escape gravity reaches one g.
	AvGravityRamp float64 `yaml:"av_gravity_ramp"`
	AvGravityMax  float64 `yaml:"av_gravity_max"`

	MinimumGroundFlightOffset float64 `yaml:"minimum_ground_flight_offset"`
	// FlightCheatMargin is subtracted from the flight offset when lifting
	// a flying avatar off the ground.
	FlightCheatMargin float64 `yaml:"flight_cheat_margin"`

	// ShoulderHeight is measured from the capsule center.
	ShoulderHeight float64 `yaml:"shoulder_height"`
	StandLift      float64 `yaml:"stand_lift"`
	TreadLift      float64 `yaml:"tread_lift"`

	MaxFallSpeed float64 `yaml:"max_fall_speed"`
	// Tilt leans the reported orientation forward, in radians per m/s.
	Tilt float64 `yaml:"tilt"`
}

// Default returns the tuned defaults.
func Default() Config {
	return Config{
		Scene: Scene{
			StepSize:             0.0181,
			MaxStepsPerFrame:     3,
			Substeps:             1,
			Workers:              1,
			Gravity:              [3]float64{0, 0, -9.8},
			WorldSize:            [3]float64{256, 256, 4096},
			CellSize:             4,
			WaterLevel:           20,
			TerrainFriction:      0.3,
			CrossingFailureLimit: 5,
			MinimumZ:             -100,
			PositionTolerance:    0.05,
			VelocityTolerance:    0.01,
			RotationTolerance:    0.01,
		},
		Prim: Prim{
			Density:            10,
			MinimumMass:        0.01,
			MaximumMass:        10000,
			MaxForcePerMass:    1000,
			LinearDrag:         0.01,
			AngularDamping:     0.1,
			PIDGain:            10,
			PIDMaxSpeed:        20,
			SnapDistance:       0.05,
			SnapVelocity:       0.1,
			AutoDisableFrames:  20,
			AutoDisableLinear:  0.01,
			AutoDisableAngular: 0.01,
		},
		Avatar: Avatar{
			CapsuleRadius:             0.37,
			Height:                    1.8,
			Density:                   100,
			PIDDamping:                33,
			CollidingFlyFactor:        0.5,
			FlyFactor:                 0.25,
			FallFactor:                0.1,
			PIDStand:                  13,
			StopVelocity:              0.01,
			GroundTolerance:           0.05,
			FlightCeiling:             4096,
			AvGravityHeight:           4096,
			AvGravityRamp:             100,
			AvGravityMax:              3,
			MinimumGroundFlightOffset: 3,
			FlightCheatMargin:         1.5,
			ShoulderHeight:            0.5,
			StandLift:                 0.5,
			TreadLift:                 2,
			MaxFallSpeed:              30,
		},
	}
}

// Load reads a YAML file over Default. Missing keys keep their default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the scene cannot run with.
func (c Config) Validate() error {
	checks := []struct {
		name string
		ok   bool
	}{
		{"ODE_STEPSIZE", positive(c.Scene.StepSize) && c.Scene.StepSize <= 1},
		{"max_steps_per_frame", c.Scene.MaxStepsPerFrame >= 1},
		{"substeps", c.Scene.Substeps >= 1},
		{"workers", c.Scene.Workers >= 1},
		{"gravity", finite(c.Scene.Gravity[:]...)},
		{"point_gravity_center", finite(c.Scene.PointGravityCenter[:]...)},
		{"world_size", positive(c.Scene.WorldSize[:]...)},
		{"cell_size", positive(c.Scene.CellSize)},
		{"water_level", finite(c.Scene.WaterLevel)},
		{"terrain_friction", finite(c.Scene.TerrainFriction) && c.Scene.TerrainFriction >= 0 && c.Scene.TerrainFriction <= 1},
		{"minimum_z", finite(c.Scene.MinimumZ) && c.Scene.MinimumZ < c.Scene.WorldSize[2]},
		{"crossing_failure_limit", c.Scene.CrossingFailureLimit >= 0},
		{"position_tolerance", nonNegative(c.Scene.PositionTolerance)},
		{"velocity_tolerance", nonNegative(c.Scene.VelocityTolerance)},
		{"rotation_tolerance", nonNegative(c.Scene.RotationTolerance)},

		{"prim.density", positive(c.Prim.Density)},
		{"minimum_mass", positive(c.Prim.MinimumMass)},
		{"maximum_mass", positive(c.Prim.MaximumMass) && c.Prim.MaximumMass >= c.Prim.MinimumMass},
		{"max_force_per_mass", positive(c.Prim.MaxForcePerMass)},
		{"linear_drag", nonNegative(c.Prim.LinearDrag)},
		{"angular_damping", nonNegative(c.Prim.AngularDamping)},
		{"pid_gain", positive(c.Prim.PIDGain)},
		{"pid_max_speed", positive(c.Prim.PIDMaxSpeed)},
		{"snap_distance", nonNegative(c.Prim.SnapDistance)},
		{"snap_velocity", nonNegative(c.Prim.SnapVelocity)},
		{"auto_disable_frames", c.Prim.AutoDisableFrames >= 0},
		{"auto_disable_linear", nonNegative(c.Prim.AutoDisableLinear)},
		{"auto_disable_angular", nonNegative(c.Prim.AutoDisableAngular)},

		{"capsule_radius", positive(c.Avatar.CapsuleRadius)},
		{"avatar.height", positive(c.Avatar.Height) && c.Avatar.Height >= 2*c.Avatar.CapsuleRadius},
		{"avatar.density", positive(c.Avatar.Density)},
		{"pid_damping", positive(c.Avatar.PIDDamping)},
		{"colliding_fly_factor", positive(c.Avatar.CollidingFlyFactor)},
		{"fly_factor", positive(c.Avatar.FlyFactor)},
		{"fall_factor", nonNegative(c.Avatar.FallFactor)},
		{"pid_stand", nonNegative(c.Avatar.PIDStand)},
		{"stop_velocity", nonNegative(c.Avatar.StopVelocity)},
		{"ground_tolerance", nonNegative(c.Avatar.GroundTolerance)},
		{"flight_ceiling", finite(c.Avatar.FlightCeiling)},
		{"AvGravityHeight", finite(c.Avatar.AvGravityHeight)},
		{"av_gravity_ramp", positive(c.Avatar.AvGravityRamp)},
		{"av_gravity_max", nonNegative(c.Avatar.AvGravityMax)},
		{"minimum_ground_flight_offset", nonNegative(c.Avatar.MinimumGroundFlightOffset)},
		{"flight_cheat_margin", nonNegative(c.Avatar.FlightCheatMargin) && c.Avatar.FlightCheatMargin <= c.Avatar.MinimumGroundFlightOffset},
		{"shoulder_height", finite(c.Avatar.ShoulderHeight)},
		{"stand_lift", nonNegative(c.Avatar.StandLift)},
		{"tread_lift", nonNegative(c.Avatar.TreadLift)},
		{"max_fall_speed", positive(c.Avatar.MaxFallSpeed)},
		{"tilt", finite(c.Avatar.Tilt)},
	}

	var errs []error
	for _, check := range checks {
		if !check.ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, check.name))
		}
	}
	return errors.Join(errs...)
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func positive(values ...float64) bool {
	for _, v := range values {
		if !finite(v) || v <= 0 {
			return false
		}
	}
	return true
}

func nonNegative(v float64) bool {
	return finite(v) && v >= 0
}
