package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

const maxImageBytes = 5 << 20

// ProductHandler serves the catalog and admin product management.
type ProductHandler struct {
	products *repository.ProductRepository
	catalog  *services.CatalogService
	users    *repository.UserRepository
	media    services.MediaStore
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(products *repository.ProductRepository, catalog *services.CatalogService, users *repository.UserRepository, media services.MediaStore) *ProductHandler {
	return &ProductHandler{products: products, catalog: catalog, users: users, media: media}
}

// ListProducts searches, filters, sorts and pages the catalog.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	q := services.ParseCatalogQuery(func(key string) string { return c.Query(key) })
	page, err := h.catalog.Search(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"data":       page.Products,
		"pagination": page.Pagination,
	})
}

// GetProduct loads one product. Signed-in callers get it recorded as recently viewed.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	product, err := h.products.FindProduct(c.UserContext(), id)
	if err != nil {
		return err
	}

	if user, ok := middleware.GetCurrentUser(c); ok {
		if err := h.users.RecordView(c.UserContext(), user.ID, product.ID, time.Now()); err != nil {
			log.Printf("[Catalog] recording view of %s for %s failed: %v", product.ID, user.ID, err)
		}
	}

	return c.JSON(fiber.Map{"success": true, "data": services.NewProductView(product)})
}

// RecentlyViewed lists the caller's recently viewed products, newest first.
// Products deleted since are dropped from the list.
func (h *ProductHandler) RecentlyViewed(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	ids, err := h.users.RecentlyViewedIDs(ctx, user.ID)
	if err != nil {
		return err
	}
	products, err := h.products.FindProducts(ctx, ids)
	if err != nil {
		return err
	}

	views := make([]services.ProductView, 0, len(ids))
	var stale []uuid.UUID
	for _, id := range ids {
		product, ok := products[id]
		if !ok {
			stale = append(stale, id)
			continue
		}
		views = append(views, services.NewProductView(product))
	}
	if err := h.users.ForgetViews(ctx, user.ID, stale); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": views})
}

// Taxonomy returns the category tree products are filed under.
func (h *ProductHandler) Taxonomy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    models.TaxonomyTree(),
		"sizes":   models.Sizes,
	})
}

// AdminListProducts pages through all products, newest first.
func (h *ProductHandler) AdminListProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	products, total, err := h.products.List(c.UserContext(), pg)
	if err != nil {
		return err
	}
	views := make([]services.ProductView, 0, len(products))
	for i := range products {
		views = append(views, services.NewProductView(&products[i]))
	}
	return c.JSON(fiber.Map{"success": true, "data": views, "pagination": pg.Meta(total)})
}

type productRequest struct {
	Title          string           `json:"title"`
	Category       string           `json:"category"`
	SubCategory    string           `json:"sub_category"`
	SubSubCategory string           `json:"sub_sub_category"`
	Description    string           `json:"description"`
	Variants       []variantRequest `json:"variants"`
	Images         []imageRequest   `json:"images"`
}

type variantRequest struct {
	ModelNumber string   `json:"model_number"`
	Size        string   `json:"size"`
	Price       float64  `json:"price"`
	Discount    float64  `json:"discount"`
	Quantity    int      `json:"quantity"`
	Quality     string   `json:"quality"`
	Tags        []string `json:"tags"`
}

type imageRequest struct {
	URL         string `json:"url"`
	PublicID    string `json:"public_id"`
	Data        string `json:"data"`
	ContentType string `json:"content_type"`
}

// CreateProduct handles product creation from JSON or a multipart form.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	product, err := h.readProduct(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	uploaded, err := h.hostImages(ctx, &product)
	if err != nil {
		return err
	}

	if err := h.products.Create(ctx, &product); err != nil {
		h.discardImages(uploaded)
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": services.NewProductView(&product)})
}

// UpdateProduct replaces a product's fields, variants and images.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	product, err := h.readProduct(c)
	if err != nil {
		return err
	}
	product.ID = id

	ctx := c.UserContext()
	uploaded, err := h.hostImages(ctx, &product)
	if err != nil {
		return err
	}
	orphaned, err := h.products.Replace(ctx, &product)
	if err != nil {
		h.discardImages(uploaded)
		return err
	}
	h.discardImages(orphaned)

	updated, err := h.products.FindProduct(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": services.NewProductView(updated)})
}

type stockRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateVariantStock sets the stock of one variant.
func (h *ProductHandler) UpdateVariantStock(c *fiber.Ctx) error {
	productID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	variantID, err := parseID(c, "variantId")
	if err != nil {
		return err
	}
	var req stockRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Quantity < 0 {
		verr := &models.ValidationError{}
		verr.Add("quantity", "must be >= 0")
		return verr
	}

	product, err := h.products.UpdateVariantStock(c.UserContext(), productID, variantID, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": services.NewProductView(product)})
}

// DeleteProduct removes a product and, best effort, its hosted images.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	publicIDs, err := h.products.Delete(c.UserContext(), id)
	if err != nil {
		return err
	}
	h.discardImages(publicIDs)
	return c.SendStatus(fiber.StatusNoContent)
}

// readProduct parses a JSON body, or a multipart form whose "product" field
// holds the JSON and whose "images" files are appended as blobs.
func (h *ProductHandler) readProduct(c *fiber.Ctx) (models.Product, error) {
	var req productRequest
	var files []models.ProductImage

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return models.Product{}, fiber.NewError(fiber.StatusBadRequest, "invalid multipart form")
		}
		if values := form.Value["product"]; len(values) > 0 {
			if err := json.Unmarshal([]byte(values[0]), &req); err != nil {
				return models.Product{}, fiber.NewError(fiber.StatusBadRequest, "invalid product field")
			}
		}
		for _, fh := range form.File["images"] {
			if fh.Size > maxImageBytes {
				return models.Product{}, fiber.NewError(fiber.StatusBadRequest, "image "+fh.Filename+" is larger than 5MB")
			}
			f, err := fh.Open()
			if err != nil {
				return models.Product{}, err
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return models.Product{}, err
			}
			contentType := fh.Header.Get(fiber.HeaderContentType)
			if !strings.HasPrefix(contentType, "image/") {
				return models.Product{}, fiber.NewError(fiber.StatusBadRequest, "image "+fh.Filename+" is not an image")
			}
			// PublicID carries the filename until hostImages replaces it.
			files = append(files, models.ProductImage{Data: data, ContentType: contentType, PublicID: fh.Filename})
		}
	} else if err := parseBody(c, &req); err != nil {
		return models.Product{}, err
	}

	product, err := buildProductFromRequest(req)
	if err != nil {
		return models.Product{}, err
	}
	for _, file := range files {
		file.DisplayOrder = len(product.Images)
		product.Images = append(product.Images, file)
	}
	if err := product.Validate(); err != nil {
		return models.Product{}, err
	}
	return product, nil
}

func buildProductFromRequest(req productRequest) (models.Product, error) {
	product := models.Product{
		Title:          strings.TrimSpace(req.Title),
		Category:       strings.TrimSpace(req.Category),
		SubCategory:    strings.TrimSpace(req.SubCategory),
		SubSubCategory: strings.TrimSpace(req.SubSubCategory),
		Description:    strings.TrimSpace(req.Description),
		Variants:       []models.ProductVariant{},
	}

	for i, v := range req.Variants {
		product.Variants = append(product.Variants, models.ProductVariant{
			Position:    i,
			ModelNumber: strings.TrimSpace(v.ModelNumber),
			Size:        v.Size,
			Price:       v.Price,
			Discount:    v.Discount,
			Quantity:    v.Quantity,
			Quality:     strings.TrimSpace(v.Quality),
			Tags:        v.Tags,
		})
	}

	for i, img := range req.Images {
		image := models.ProductImage{
			URL:          strings.TrimSpace(img.URL),
			PublicID:     strings.TrimSpace(img.PublicID),
			ContentType:  img.ContentType,
			DisplayOrder: i,
		}
		if img.Data != "" {
			data, err := decodeImageData(img.Data, &image.ContentType)
			if err != nil {
				verr := &models.ValidationError{}
				verr.Add("images", "data must be base64 or a data URI")
				return product, verr
			}
			image.Data = data
			image.URL = ""
			image.PublicID = ""
		}
		product.Images = append(product.Images, image)
	}

	return product, nil
}

// decodeImageData accepts raw base64 or a data URI, taking the content type from the URI.
func decodeImageData(value string, contentType *string) ([]byte, error) {
	if strings.HasPrefix(value, "data:") {
		header, payload, found := strings.Cut(value, ",")
		if !found {
			return nil, base64.CorruptInputError(0)
		}
		if mime := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64"); mime != "" {
			*contentType = mime
		}
		value = payload
	}
	return base64.StdEncoding.DecodeString(value)
}

// hostImages moves blob images to the image host when one is configured and
// returns the public ids it created. Without a host blobs stay inline.
func (h *ProductHandler) hostImages(ctx context.Context, product *models.Product) ([]string, error) {
	var uploaded []string
	for i := range product.Images {
		img := &product.Images[i]
		if len(img.Data) == 0 {
			continue
		}
		filename := img.PublicID
		img.PublicID = ""
		if h.media == nil || !h.media.Enabled() {
			continue
		}
		if filename == "" {
			filename = "image"
		}
		hosted, err := h.media.Upload(ctx, filename, img.Data)
		if err != nil {
			h.discardImages(uploaded)
			return nil, err
		}
		uploaded = append(uploaded, hosted.PublicID)
		img.Data = nil
		img.ContentType = ""
		img.URL = hosted.URL
		img.PublicID = hosted.PublicID
	}
	return uploaded, nil
}

// discardImages deletes hosted images in the background.
func (h *ProductHandler) discardImages(publicIDs []string) {
	if len(publicIDs) == 0 || h.media == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		h.media.DeleteBatch(ctx, publicIDs)
	}()
}
