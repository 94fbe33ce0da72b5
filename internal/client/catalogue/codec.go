package catalogue

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/catalogue-manager/internal/domain/product"
)

// encodePayload writes the {"title", "details"} body shared by create and
// update requests. Absent details are encoded as an explicit null.
func encodePayload(title string, details *string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("title")
	e.Str(title)
	e.FieldStart("details")
	if details == nil {
		e.Null()
	} else {
		e.Str(*details)
	}
	e.ObjEnd()
	return e.Bytes()
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var (
		p     product.Product
		hasID bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			id, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "id")
			}
			p.ID = id
			hasID = true
			return nil
		case "title":
			s, err := optString(d)
			if err != nil {
				return errors.Wrap(err, "title")
			}
			p.Title = s
			return nil
		case "details":
			s, err := optString(d)
			if err != nil {
				return errors.Wrap(err, "details")
			}
			p.Details = s
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return product.Product{}, err
	}
	if !hasID {
		return product.Product{}, errors.New("product without id")
	}
	return p, nil
}

func decodeProductBody(body []byte) (product.Product, error) {
	p, err := decodeProduct(jx.DecodeBytes(body))
	if err != nil {
		return product.Product{}, errors.Wrap(err, "decode product")
	}
	return p, nil
}

func decodeProductList(body []byte) ([]product.Product, error) {
	products := make([]product.Product, 0)
	err := jx.DecodeBytes(body).Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return err
		}
		products = append(products, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return products, nil
}

// decodeValidationErrors reads the "errors" field of a plain JSON or
// problem+json body. Other problem fields (type, title, status, detail,
// instance) are ignored.
func decodeValidationErrors(body []byte) ([]string, error) {
	var messages []string
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "errors" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		return d.Arr(func(d *jx.Decoder) error {
			s, err := d.Str()
			if err != nil {
				return err
			}
			messages = append(messages, s)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode validation errors")
	}
	return messages, nil
}

func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
