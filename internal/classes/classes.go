// Package classes holds the fixed COCO label table the detector was trained on.
// Labels are the Spanish names exposed by the upload API; a label's position
// in the table is the detector class index.
package classes

import "strings"

var labels = [...]string{
	"persona", "bicicleta", "coche", "moto",
	"avión", "autobús", "tren", "camión", "barco",
	"semáforo", "boca de incendio", "señal de alto",
	"parquímetro", "banco", "pájaro", "gato", "perro",
	"caballo", "oveja", "vaca", "elefante", "oso",
	"cebra", "jirafa", "mochila", "paraguas", "bolso",
	"corbata", "maleta", "frisbee", "esquís", "snowboard",
	"pelota deportiva", "cometa", "bate de béisbol",
	"guante de béisbol", "patín", "tabla de surf",
	"raqueta de tenis", "botella", "copa de vino",
	"copa", "tenedor", "cuchillo", "cuchara",
	"cuenco", "plátano", "manzana", "sándwich",
	"naranja", "brócoli", "zanahoria",
	"perrito caliente", "pizza", "dona", "pastel",
	"silla", "sofá", "planta en maceta", "cama",
	"mesa de comedor", "inodoro", "televisión",
	"computadora portátil", "ratón", "control remoto",
	"teclado", "teléfono móvil", "microondas", "horno",
	"tostadora", "fregadero", "nevera", "libro", "reloj",
	"jarrón", "tijeras", "oso de peluche", "secador de pelo",
	"cepillo de dientes",
}

// cocoNames are the upstream English names, index-aligned with labels.
var cocoNames = [...]string{
	"person", "bicycle", "car", "motorcycle",
	"airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign",
	"parking meter", "bench", "bird", "cat", "dog",
	"horse", "sheep", "cow", "elephant", "bear",
	"zebra", "giraffe", "backpack", "umbrella", "handbag",
	"tie", "suitcase", "frisbee", "skis", "snowboard",
	"sports ball", "kite", "baseball bat",
	"baseball glove", "skateboard", "surfboard",
	"tennis racket", "bottle", "wine glass",
	"cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich",
	"orange", "broccoli", "carrot",
	"hot dog", "pizza", "donut", "cake",
	"chair", "couch", "potted plant", "bed",
	"dining table", "toilet", "tv",
	"laptop", "mouse", "remote",
	"keyboard", "cell phone", "microwave", "oven",
	"toaster", "sink", "refrigerator", "book", "clock",
	"vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}

// Count is the number of classes the model predicts.
const Count = len(labels)

var index = func() map[string]int {
	m := make(map[string]int, len(labels))
	for i, l := range labels {
		m[l] = i
	}
	return m
}()

// Lookup returns the class index for an exact label match.
func Lookup(label string) (int, bool) {
	i, ok := index[label]
	return i, ok
}

// Valid reports whether label is in the table.
func Valid(label string) bool {
	_, ok := index[label]
	return ok
}

// Name returns the label for a class index, or "" when out of range.
func Name(i int) string {
	if i < 0 || i >= Count {
		return ""
	}
	return labels[i]
}

// COCOName returns the upstream English name for a class index.
func COCOName(i int) string {
	if i < 0 || i >= Count {
		return ""
	}
	return cocoNames[i]
}

// Class is one entry of the table.
type Class struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	COCO  string `json:"coco"`
}

// All returns the whole table in index order.
func All() []Class {
	out := make([]Class, Count)
	for i := range labels {
		out[i] = Class{Index: i, Label: Name(i), COCO: COCOName(i)}
	}
	return out
}

// Suggest returns labels containing query, case-insensitively. Used to build
// friendlier error details; never to accept a label.
func Suggest(query string, limit int) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []string
	for _, l := range labels {
		if strings.Contains(l, q) {
			out = append(out, l)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}
