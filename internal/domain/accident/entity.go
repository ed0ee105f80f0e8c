package accident

type EntityType string

const (
	EntityPedestrian EntityType = "pedestrian"
	EntityBicycle    EntityType = "bicycle"
	EntityCar        EntityType = "car"
	EntityMotorcycle EntityType = "motorcycle"
	EntityBus        EntityType = "bus"
	EntityTruck      EntityType = "truck"
	EntityUnknown    EntityType = "unknown"
)

// COCO class ids accepted by the object classifier.
const (
	ClassPerson     = 0
	ClassBicycle    = 1
	ClassCar        = 2
	ClassMotorcycle = 3
	ClassBus        = 5
	ClassTruck      = 7
)

// ObjectClasses is the allow-list passed to the object classifier.
var ObjectClasses = []int{ClassPerson, ClassBicycle, ClassCar, ClassMotorcycle, ClassBus, ClassTruck}

var entityTypes = map[int]EntityType{
	ClassPerson:     EntityPedestrian,
	ClassBicycle:    EntityBicycle,
	ClassCar:        EntityCar,
	ClassMotorcycle: EntityMotorcycle,
	ClassBus:        EntityBus,
	ClassTruck:      EntityTruck,
}

func EntityTypeFromClass(classID int) EntityType {
	if t, ok := entityTypes[classID]; ok {
		return t
	}
	return EntityUnknown
}

// CarriesPlate reports whether entities of this type get a license plate slot.
func (t EntityType) CarriesPlate() bool {
	switch t {
	case EntityCar, EntityMotorcycle, EntityBus, EntityTruck:
		return true
	default:
		return false
	}
}

type Entity struct {
	Type         EntityType `json:"type"`
	LicensePlate *string    `json:"license_plate,omitempty"`
}

// BuildEntities joins object classes with recognized plates positionally.
// The i-th plate-carrying entity gets plates[i], or "" once plates run out.
func BuildEntities(classIDs []int, plates []string) []Entity {
	entities := make([]Entity, 0, len(classIDs))
	next := 0
	for _, classID := range classIDs {
		entity := Entity{Type: EntityTypeFromClass(classID)}
		if entity.Type.CarriesPlate() {
			plate := ""
			if next < len(plates) {
				plate = plates[next]
				next++
			}
			entity.LicensePlate = &plate
		}
		entities = append(entities, entity)
	}
	return entities
}
